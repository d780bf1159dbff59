package google

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCECodes(t *testing.T) {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}

	if len(pkce.CodeVerifier) != 128 {
		t.Fatalf("expected 128-character verifier, got %d", len(pkce.CodeVerifier))
	}
	if _, err = base64.RawURLEncoding.DecodeString(pkce.CodeVerifier); err != nil {
		t.Fatalf("verifier is not URL-safe base64: %v", err)
	}

	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != want {
		t.Fatalf("challenge is not S256(verifier): got %q want %q", pkce.CodeChallenge, want)
	}
}

func TestGeneratePKCECodesUnique(t *testing.T) {
	first, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}
	second, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}
	if first.CodeVerifier == second.CodeVerifier {
		t.Fatal("expected distinct verifiers")
	}
}

func TestGenerateRandomState(t *testing.T) {
	state, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState: %v", err)
	}
	if len(state) != 32 {
		t.Fatalf("expected 32 hex characters, got %d", len(state))
	}

	other, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState: %v", err)
	}
	if state == other {
		t.Fatal("expected distinct states")
	}
}
