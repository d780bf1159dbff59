package google

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// GoogleTokenStorage is the on-disk form of delivered tokens, written by the
// command-line host after the flow completes. The callback subsystem itself
// never persists tokens.
type GoogleTokenStorage struct {
	// AccessToken is the OAuth2 access token for Drive API access.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens. Empty when the
	// provider did not return one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// LastRefresh is the timestamp of the last token refresh operation.
	LastRefresh string `json:"last_refresh"`

	// Type indicates the authentication provider, always "google".
	Type string `json:"type"`

	// Expire is the timestamp when the current access token expires.
	Expire string `json:"expired"`
}

// NewTokenStorage converts a delivered token payload into its persistent
// form, stamping the expiry from the provider's expires_in.
func NewTokenStorage(payload TokenPayload) *GoogleTokenStorage {
	ts := &GoogleTokenStorage{
		AccessToken: payload.AccessToken,
		LastRefresh: time.Now().Format(time.RFC3339),
		Expire:      time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second).Format(time.RFC3339),
	}
	if payload.RefreshToken != nil {
		ts.RefreshToken = *payload.RefreshToken
	}
	return ts
}

// ApplyRefresh updates the storage with a refreshed access token, keeping
// the existing refresh token.
func (ts *GoogleTokenStorage) ApplyRefresh(refreshed *RefreshedToken) {
	ts.AccessToken = refreshed.AccessToken
	ts.LastRefresh = time.Now().Format(time.RFC3339)
	ts.Expire = time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second).Format(time.RFC3339)
}

// SaveTokenToFile serializes the token storage to a JSON file, creating the
// directory structure as needed.
func (ts *GoogleTokenStorage) SaveTokenToFile(authFilePath string) error {
	log.Debugf("saving credentials to %s", authFilePath)
	ts.Type = "google"

	if err := os.MkdirAll(filepath.Dir(authFilePath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(authFilePath)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err = json.NewEncoder(f).Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// LoadTokenFromFile reads a previously saved token storage.
func LoadTokenFromFile(authFilePath string) (*GoogleTokenStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var ts GoogleTokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &ts, nil
}
