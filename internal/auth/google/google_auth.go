package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mokuro-reader/drive-auth/internal/config"
	"github.com/mokuro-reader/drive-auth/internal/util"
	log "github.com/sirupsen/logrus"
)

// GoogleAuth performs the authorization-code and refresh-token exchanges
// against the provider's token endpoint. Both exchanges are synchronous
// form-encoded POSTs; the refresh path is independent of the pending-request
// store and can be invoked at any time.
type GoogleAuth struct {
	httpClient    *http.Client
	tokenEndpoint string
}

// NewGoogleAuth creates a new Google token exchange client. The underlying
// HTTP client honors the configured outbound proxy.
func NewGoogleAuth(cfg *config.Config) *GoogleAuth {
	endpoint := TokenEndpoint
	if cfg != nil && cfg.TokenEndpoint != "" {
		endpoint = cfg.TokenEndpoint
	}
	return &GoogleAuth{
		httpClient:    util.SetProxy(cfg, &http.Client{Timeout: 30 * time.Second}),
		tokenEndpoint: endpoint,
	}
}

// ExchangeCode exchanges an authorization code for access tokens using the
// PKCE verifier stored when the flow started. The client secret is included
// only when non-empty, supporting public PKCE clients.
func (a *GoogleAuth) ExchangeCode(ctx context.Context, code, codeVerifier, clientID, clientSecret, redirectURI string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("client_id", clientID)
	data.Set("code_verifier", codeVerifier)
	data.Set("redirect_uri", redirectURI)
	data.Set("grant_type", "authorization_code")
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	body, err := a.postForm(ctx, "token exchange", data)
	if err != nil {
		return nil, err
	}

	var tokens TokenSet
	if err = json.Unmarshal(body, &tokens); err != nil {
		return nil, &DecodeError{Op: "token exchange", Cause: err}
	}
	return &tokens, nil
}

// RefreshToken exchanges a stored refresh token for a new access token. The
// client secret is included only when non-empty.
func (a *GoogleAuth) RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (*RefreshedToken, error) {
	data := url.Values{}
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", clientID)
	data.Set("grant_type", "refresh_token")
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	body, err := a.postForm(ctx, "token refresh", data)
	if err != nil {
		return nil, err
	}

	var tokens TokenSet
	if err = json.Unmarshal(body, &tokens); err != nil {
		return nil, &DecodeError{Op: "token refresh", Cause: err}
	}
	return &RefreshedToken{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
	}, nil
}

// postForm sends a form-encoded POST to the token endpoint and returns the
// response body of a 2xx reply. Non-2xx replies yield an ExchangeError that
// carries only the status; the body is logged locally, never surfaced.
func (a *GoogleAuth) postForm(ctx context.Context, op string, data url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &AuthenticationError{
			Type:    "request_build_failed",
			Message: op + " request could not be built",
			Cause:   err,
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{
			Type:    "transport_failure",
			Message: op + " request failed",
			Cause:   err,
		}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthenticationError{
			Type:    "transport_failure",
			Message: op + " response could not be read",
			Cause:   err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("%s failed: %d - %s", op, resp.StatusCode, string(body))
		return nil, &ExchangeError{Op: op, StatusCode: resp.StatusCode}
	}
	return body, nil
}
