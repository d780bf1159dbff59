package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
client-id: client1.apps.googleusercontent.com
client-secret: sekrit
callback-port: 17342
token-endpoint: http://127.0.0.1:9999/token
proxy-url: socks5://127.0.0.1:1080
flow-timeout-seconds: 120
auth-dir: /tmp/mokuro
debug: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ClientID != "client1.apps.googleusercontent.com" {
		t.Errorf("unexpected client id %q", cfg.ClientID)
	}
	if cfg.ClientSecret != "sekrit" {
		t.Errorf("unexpected client secret %q", cfg.ClientSecret)
	}
	if cfg.CallbackPort != 17342 {
		t.Errorf("unexpected callback port %d", cfg.CallbackPort)
	}
	if cfg.TokenEndpoint != "http://127.0.0.1:9999/token" {
		t.Errorf("unexpected token endpoint %q", cfg.TokenEndpoint)
	}
	if cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("unexpected proxy url %q", cfg.ProxyURL)
	}
	if cfg.AuthDir != "/tmp/mokuro" {
		t.Errorf("unexpected auth dir %q", cfg.AuthDir)
	}
	if !cfg.Debug {
		t.Error("expected debug to be enabled")
	}
	if got := cfg.FlowTimeout(); got != 2*time.Minute {
		t.Errorf("unexpected flow timeout %s", got)
	}
	if got := cfg.RedirectURI(); got != "http://127.0.0.1:17342/callback" {
		t.Errorf("unexpected redirect uri %q", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "client-id: client1\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.CallbackPort != DefaultCallbackPort {
		t.Errorf("expected default callback port %d, got %d", DefaultCallbackPort, cfg.CallbackPort)
	}
	if cfg.AuthDir == "" {
		t.Error("expected a default auth dir")
	}
	if got := cfg.FlowTimeout(); got != 0 {
		t.Errorf("expected zero flow timeout by default, got %s", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadConfigOptionalMissingFile(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.CallbackPort != DefaultCallbackPort {
		t.Errorf("expected defaults for a missing optional config, got port %d", cfg.CallbackPort)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "client-id: [unclosed\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}
