package google

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// pickPort reserves a free loopback port and releases it for the flow under
// test to bind.
func pickPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

func waitNotification(t *testing.T, notifier *ChannelNotifier) Notification {
	t.Helper()
	select {
	case note := <-notifier.Events():
		return note
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func assertNoNotification(t *testing.T, notifier *ChannelNotifier) {
	t.Helper()
	select {
	case note := <-notifier.Events():
		t.Fatalf("expected no notification, got %+v", note)
	case <-time.After(200 * time.Millisecond):
	}
}

func waitCleared(t *testing.T, store *PendingStore) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Snapshot(); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pending request was not cleared")
}

// getCallback issues the browser-side GET against the loopback listener.
func getCallback(t *testing.T, port int, query url.Values) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?%s", port, query.Encode()))
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read callback response: %v", err)
	}
	return resp.StatusCode, string(body)
}

type flowEnv struct {
	server        *OAuthServer
	store         *PendingStore
	notifier      *ChannelNotifier
	port          int
	exchangeCalls int32
}

// newFlowEnv starts a flow against a mock token endpoint and returns the
// wired components. The mock handler may be nil when the exchange should
// never be reached.
func newFlowEnv(t *testing.T, exchangeHandler http.HandlerFunc, timeout time.Duration) *flowEnv {
	t.Helper()

	env := &flowEnv{}
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.exchangeCalls, 1)
		if exchangeHandler != nil {
			exchangeHandler(w, r)
		}
	}))
	t.Cleanup(mock.Close)

	env.store = NewPendingStore()
	env.notifier = NewChannelNotifier()
	env.server = NewOAuthServer(newTestAuth(mock.URL), env.store, env.notifier, timeout)
	env.port = pickPort(t)
	t.Cleanup(func() {
		_ = env.server.Stop(context.Background())
	})
	return env
}

func (env *flowEnv) start(t *testing.T, state string) {
	t.Helper()
	err := env.server.StartFlow(context.Background(), FlowRequest{
		State:        state,
		Port:         env.port,
		CodeVerifier: "verifier1",
		ClientID:     "client1",
		ClientSecret: "",
		RedirectURI:  fmt.Sprintf("http://127.0.0.1:%d/callback", env.port),
	})
	if err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
}

func TestFlowSuccess(t *testing.T) {
	env := newFlowEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("code"); got != "xyz" {
			t.Errorf("exchange received code %q, want %q", got, "xyz")
		}
		if got := r.PostForm.Get("code_verifier"); got != "verifier1" {
			t.Errorf("exchange received verifier %q, want %q", got, "verifier1")
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600,"token_type":"Bearer"}`))
	}, 0)
	env.start(t, "abc123")

	status, body := getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"abc123"}})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from callback, got %d", status)
	}
	if !strings.Contains(body, "Authentication Successful") {
		t.Fatalf("expected success page, got %q", body)
	}

	note := waitNotification(t, env.notifier)
	if note.Token == nil {
		t.Fatalf("expected a token notification, got error %q", note.Err)
	}
	if note.Token.AccessToken != "tok" || note.Token.ExpiresIn != 3600 {
		t.Fatalf("unexpected token payload: %+v", note.Token)
	}
	if note.Token.RefreshToken != nil {
		t.Fatalf("expected nil refresh token, got %q", *note.Token.RefreshToken)
	}

	assertNoNotification(t, env.notifier)
	waitCleared(t, env.store)
}

func TestFlowSuccessWithRefreshToken(t *testing.T) {
	env := newFlowEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600,"refresh_token":"ref","token_type":"Bearer"}`))
	}, 0)
	env.start(t, "abc123")

	getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"abc123"}})

	note := waitNotification(t, env.notifier)
	if note.Token == nil || note.Token.RefreshToken == nil || *note.Token.RefreshToken != "ref" {
		t.Fatalf("expected refresh token in payload, got %+v", note.Token)
	}
}

func TestFlowStateMismatch(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "expected-state")

	status, body := getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"wrong-state"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 from callback, got %d", status)
	}
	if !strings.Contains(body, "State mismatch") {
		t.Fatalf("expected state mismatch page, got %q", body)
	}

	note := waitNotification(t, env.notifier)
	if note.Err != "State mismatch" {
		t.Fatalf("expected %q notification, got %+v", "State mismatch", note)
	}
	if calls := atomic.LoadInt32(&env.exchangeCalls); calls != 0 {
		t.Fatalf("expected no exchange requests on state mismatch, got %d", calls)
	}
	waitCleared(t, env.store)
}

func TestFlowProviderErrorForwardedVerbatim(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "abc123")

	status, _ := getCallback(t, env.port, url.Values{"error": {"access_denied"}, "state": {"abc123"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 from callback, got %d", status)
	}

	note := waitNotification(t, env.notifier)
	if note.Err != "access_denied" {
		t.Fatalf("expected provider error to be forwarded verbatim, got %+v", note)
	}
	if calls := atomic.LoadInt32(&env.exchangeCalls); calls != 0 {
		t.Fatalf("expected no exchange requests on provider error, got %d", calls)
	}
}

func TestFlowFailurePageEscapesErrorText(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "abc123")

	_, body := getCallback(t, env.port, url.Values{"error": {"<script>alert(1)</script>"}, "state": {"abc123"}})
	if strings.Contains(body, "<script>") {
		t.Fatalf("failure page did not escape error text: %q", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped error text in page, got %q", body)
	}
	waitNotification(t, env.notifier)
}

func TestFlowExchangeStatusFailure(t *testing.T) {
	env := newFlowEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}, 0)
	env.start(t, "abc123")

	status, _ := getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"abc123"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 from callback, got %d", status)
	}

	note := waitNotification(t, env.notifier)
	if note.Token != nil {
		t.Fatalf("expected no token notification, got %+v", note.Token)
	}
	if !strings.Contains(note.Err, "token exchange failed with status 400") {
		t.Fatalf("unexpected error notification: %q", note.Err)
	}
	waitCleared(t, env.store)
}

func TestFlowNoPendingRequest(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "abc123")

	// Simulate a callback racing in after the flow state was consumed.
	env.store.Clear()

	status, body := getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"abc123"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 from callback, got %d", status)
	}
	if !strings.Contains(body, "No pending OAuth request") {
		t.Fatalf("expected no-pending page, got %q", body)
	}

	note := waitNotification(t, env.notifier)
	if note.Err != "No pending OAuth request" {
		t.Fatalf("expected %q notification, got %+v", "No pending OAuth request", note)
	}
}

func TestFlowInvalidPath(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "abc123")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/favicon.ico", env.port))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-callback path, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Invalid request") {
		t.Fatalf("expected generic invalid-request page, got %q", string(body))
	}

	// Malformed callbacks end the flow silently.
	assertNoNotification(t, env.notifier)
	if calls := atomic.LoadInt32(&env.exchangeCalls); calls != 0 {
		t.Fatalf("expected no exchange requests, got %d", calls)
	}
}

func TestStartFlowOverwritesPriorFlow(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "first-state")

	// The second flow reuses the port; the stale listener must be closed
	// before rebinding.
	env.start(t, "second-state")

	status, _ := getCallback(t, env.port, url.Values{"code": {"xyz"}, "state": {"first-state"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected the stale state to be rejected, got %d", status)
	}

	note := waitNotification(t, env.notifier)
	if note.Err != "State mismatch" && note.Err != "No pending OAuth request" {
		t.Fatalf("expected the stale callback to fail, got %+v", note)
	}
	if calls := atomic.LoadInt32(&env.exchangeCalls); calls != 0 {
		t.Fatalf("expected no exchange requests, got %d", calls)
	}
}

func TestStartFlowBindFailure(t *testing.T) {
	port := pickPort(t)
	blocker, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer func() {
		_ = blocker.Close()
	}()

	env := newFlowEnv(t, nil, 0)
	err = env.server.StartFlow(context.Background(), FlowRequest{
		State:       "abc123",
		Port:        port,
		ClientID:    "client1",
		RedirectURI: fmt.Sprintf("http://127.0.0.1:%d/callback", port),
	})
	if err == nil {
		t.Fatal("expected a bind error")
	}
	if !IsAuthenticationError(err) {
		t.Fatalf("expected AuthenticationError, got %T: %v", err, err)
	}
	assertNoNotification(t, env.notifier)
}

func TestFlowTimeout(t *testing.T) {
	env := newFlowEnv(t, nil, 50*time.Millisecond)
	env.start(t, "abc123")

	note := waitNotification(t, env.notifier)
	if note.Err != ErrCallbackTimeout.Message {
		t.Fatalf("expected timeout notification, got %+v", note)
	}
	waitCleared(t, env.store)

	// The listener must be torn down so the port can be reused.
	deadline := time.Now().Add(2 * time.Second)
	for {
		listener, errListen := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", env.port))
		if errListen == nil {
			_ = listener.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("port was not released after timeout: %v", errListen)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopCancelsFlowSilently(t *testing.T) {
	env := newFlowEnv(t, nil, 0)
	env.start(t, "abc123")

	if err := env.server.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	assertNoNotification(t, env.notifier)

	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback", env.port)); err == nil {
		t.Fatal("expected the listener to be closed after Stop")
	}
}
