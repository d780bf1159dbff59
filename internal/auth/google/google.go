// Package google implements the OAuth2 Authorization Code + PKCE backend used
// by Mokuro Reader to authorize Google Drive sync. Because the desktop
// application cannot register a fixed HTTPS redirect URI, the flow captures
// the provider redirect on a transient loopback listener, validates the
// anti-CSRF state, exchanges the authorization code for tokens, and delivers
// the outcome to the host through an asynchronous notifier.
package google

const (
	// TokenEndpoint is Google's OAuth2 token endpoint. It can be overridden
	// through the configuration, primarily for tests.
	TokenEndpoint = "https://oauth2.googleapis.com/token"

	// CallbackPath is the path component of the loopback redirect URI
	// registered with the provider.
	CallbackPath = "/callback"
)

// PendingOAuthRequest holds the verification material for one in-flight
// authorization flow. At most one exists at any time; it is owned by the
// PendingStore and destroyed when callback handling concludes.
type PendingOAuthRequest struct {
	// State is the anti-CSRF value issued before redirecting to the provider.
	State string
	// CodeVerifier is the PKCE verifier bound to the authorization code.
	CodeVerifier string
	// ClientID identifies the OAuth client.
	ClientID string
	// ClientSecret may be empty for public PKCE clients.
	ClientSecret string
	// RedirectURI is the loopback redirect URI sent with the token exchange.
	RedirectURI string
}

// TokenSet is the result of exchanging an authorization code.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// RefreshedToken is the result of refreshing an access token.
type RefreshedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenPayload is the success notification delivered to the host after a
// completed flow. RefreshToken is nil when the provider did not return one.
type TokenPayload struct {
	AccessToken  string  `json:"access_token"`
	ExpiresIn    int64   `json:"expires_in"`
	RefreshToken *string `json:"refresh_token"`
}
