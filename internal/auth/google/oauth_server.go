package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// maxRequestBytes bounds the callback request headers. Oversized
	// requests are rejected by the parser rather than truncated.
	maxRequestBytes = 4096

	// DefaultFlowTimeout bounds how long an abandoned flow may hold the
	// callback port before the listener is torn down.
	DefaultFlowTimeout = 5 * time.Minute
)

// FlowRequest carries the inputs of one authorization flow. The caller is
// responsible for matching Port to the redirect URI registered with the
// provider.
type FlowRequest struct {
	// State is the anti-CSRF value embedded in the authorization URL.
	State string
	// Port is the unprivileged loopback port the browser will redirect to.
	Port int
	// CodeVerifier is the PKCE verifier for the token exchange.
	CodeVerifier string
	// ClientID identifies the OAuth client.
	ClientID string
	// ClientSecret may be empty for public PKCE clients.
	ClientSecret string
	// RedirectURI is echoed to the token endpoint during the exchange.
	RedirectURI string
}

// OAuthServer orchestrates local-callback OAuth flows: it stores the pending
// request, binds a transient loopback listener, captures the provider
// redirect, validates it, exchanges the authorization code, and delivers the
// outcome through the notifier. One flow runs at a time; starting a new flow
// cancels a stale one instead of orphaning its listener.
type OAuthServer struct {
	auth     *GoogleAuth
	store    *PendingStore
	notifier Notifier
	timeout  time.Duration

	mu      sync.Mutex
	current *flow
}

// flow tracks one in-flight callback listener.
type flow struct {
	server *http.Server
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOAuthServer constructs an orchestrator around the given exchange
// client, pending-request store, and notifier. A non-positive timeout falls
// back to DefaultFlowTimeout.
func NewOAuthServer(auth *GoogleAuth, store *PendingStore, notifier Notifier, timeout time.Duration) *OAuthServer {
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	return &OAuthServer{
		auth:     auth,
		store:    store,
		notifier: notifier,
		timeout:  timeout,
	}
}

// StartFlow stores the pending request and binds the loopback listener. Bind
// failures are returned synchronously and no worker is spawned. On success
// the flow continues in the background and later emits exactly one
// notification: either the token payload or an error message.
//
// Any previous flow still waiting on its callback is canceled before the
// port is rebound.
func (s *OAuthServer) StartFlow(ctx context.Context, req FlowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopCurrentLocked()

	s.store.Set(PendingOAuthRequest{
		State:        req.State,
		CodeVerifier: req.CodeVerifier,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  req.RedirectURI,
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", req.Port))
	if err != nil {
		return NewAuthenticationError(ErrPortInUse, fmt.Errorf("failed to bind to port %d: %w", req.Port, err))
	}

	flowID := uuid.NewString()[:8]
	logger := log.WithField("request_id", flowID)
	logger.Infof("OAuth callback server listening on 127.0.0.1:%d", req.Port)

	flowCtx, cancel := context.WithCancel(ctx)
	f := &flow{cancel: cancel, done: make(chan struct{})}

	// The first request concludes the flow regardless of path; later
	// requests racing in before shutdown only get a generic failure page.
	handled := make(chan struct{})
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		first := false
		once.Do(func() { first = true })
		if !first {
			writeFailurePage(w, "Invalid request")
			return
		}
		defer close(handled)
		s.processCallback(flowCtx, logger, w, r)
	})

	f.server = &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: maxRequestBytes,
	}
	f.server.SetKeepAlivesEnabled(false)
	s.current = f

	go func() {
		if errServe := f.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			logger.Errorf("OAuth callback server failed: %v", errServe)
		}
	}()
	go s.watchFlow(flowCtx, logger, f, handled)

	return nil
}

// Stop cancels the in-flight flow, if any, and waits for its listener to
// shut down. It is safe to call when no flow is running.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	f := s.current
	s.current = nil
	s.mu.Unlock()

	if f == nil {
		return nil
	}
	f.cancel()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopCurrentLocked cancels a stale flow before a new one rebinds the port.
// The canceled flow emits no notification and does not clear the store; the
// successor owns the pending request from here on.
func (s *OAuthServer) stopCurrentLocked() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	<-s.current.done
	s.current = nil
}

// watchFlow waits for the flow to conclude and tears the listener down. The
// pending request is cleared exactly once per concluded flow: after the
// callback was handled, or after the deadline expired. Cancellation skips
// the clear because a canceled flow never concluded and its pending request
// has already been overwritten or is owned by the shutdown path.
func (s *OAuthServer) watchFlow(ctx context.Context, logger *log.Entry, f *flow, handled <-chan struct{}) {
	defer close(f.done)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-handled:
		s.store.Clear()
	case <-timer.C:
		logger.Warnf("OAuth flow timed out after %s", s.timeout)
		s.notifier.NotifyError(ErrCallbackTimeout.Message)
		s.store.Clear()
	case <-ctx.Done():
		logger.Debug("OAuth flow canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("failed to shut down OAuth callback server: %v", err)
	}
}

// processCallback drives one callback through validation, exchange, response
// rendering, and notification. Within a flow, validation happens before the
// exchange, the exchange before the notification, and the notification
// before the store is cleared.
func (s *OAuthServer) processCallback(ctx context.Context, logger *log.Entry, w http.ResponseWriter, r *http.Request) {
	logger.Infof("OAuth callback received: %s", r.URL.RequestURI())

	// Anything that is not a GET on the callback path ends the flow with a
	// generic page and no host notification.
	if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, CallbackPath) {
		writeFailurePage(w, "Invalid request")
		return
	}

	query := r.URL.Query()

	pending, ok := s.store.Snapshot()
	if !ok {
		logger.Error("no stored OAuth request for callback")
		s.notifier.NotifyError(ErrNoPendingRequest.Message)
		writeFailurePage(w, ErrNoPendingRequest.Message)
		return
	}

	// The state check runs before any use of the code parameter.
	if query.Get("state") != pending.State {
		logger.Error("OAuth state mismatch")
		s.notifier.NotifyError(ErrStateMismatch.Message)
		writeFailurePage(w, ErrStateMismatch.Message)
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		logger.Errorf("OAuth error from provider: %s", errParam)
		s.notifier.NotifyError(errParam)
		writeFailurePage(w, errParam)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeFailurePage(w, "Invalid request")
		return
	}

	logger.Info("got authorization code, exchanging for tokens")
	tokens, err := s.auth.ExchangeCode(ctx, code, pending.CodeVerifier, pending.ClientID, pending.ClientSecret, pending.RedirectURI)
	if err != nil {
		if ctx.Err() != nil {
			// The flow was canceled mid-exchange; the successor or the
			// shutdown path owns the outcome now.
			logger.Debug("OAuth flow canceled during token exchange")
			return
		}
		logger.Errorf("token exchange failed: %v", err)
		s.notifier.NotifyError(err.Error())
		writeFailurePage(w, err.Error())
		return
	}

	logger.Info("token exchange successful")
	payload := TokenPayload{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
	}
	if tokens.RefreshToken != "" {
		refreshToken := tokens.RefreshToken
		payload.RefreshToken = &refreshToken
	}
	s.notifier.NotifyToken(payload)
	writeSuccessPage(w)
}
