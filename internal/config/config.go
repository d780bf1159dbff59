// Package config provides configuration management for the Mokuro Reader
// drive-auth backend. It handles loading and parsing the YAML configuration
// file and provides structured access to the OAuth client settings, callback
// listener settings, and logging options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// ClientID is the OAuth client identifier registered with Google.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the OAuth client secret. It may be empty for public
	// PKCE clients and is usually supplied through the environment instead
	// of the config file.
	ClientSecret string `yaml:"client-secret,omitempty" json:"client-secret,omitempty"`

	// CallbackPort is the loopback port the browser redirects to. It must
	// match the redirect URI registered with the provider.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// TokenEndpoint overrides the provider token endpoint. Empty means
	// Google's production endpoint; tests point this at a local server.
	TokenEndpoint string `yaml:"token-endpoint,omitempty" json:"token-endpoint,omitempty"`

	// ProxyURL is the URL of an optional proxy server for outbound requests.
	// SOCKS5, HTTP, and HTTPS proxies are supported.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// FlowTimeoutSeconds bounds how long the callback listener waits for the
	// browser to return. <= 0 selects the default of five minutes.
	FlowTimeoutSeconds int `yaml:"flow-timeout-seconds,omitempty" json:"flow-timeout-seconds,omitempty"`

	// AuthDir is the directory where delivered tokens are persisted by the
	// command-line host.
	AuthDir string `yaml:"auth-dir,omitempty" json:"auth-dir,omitempty"`

	// LogDir enables rotating file logging when non-empty.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultCallbackPort is used when the config file does not set one. It
// matches the loopback redirect URI registered for Mokuro Reader.
const DefaultCallbackPort = 17342

// LoadConfig reads the YAML configuration from the given path and applies
// defaults for unset fields.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but returns a default
// configuration when the file does not exist and optional is true.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil && optional && errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.AuthDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.AuthDir = filepath.Join(home, ".mokuro-reader")
		} else {
			c.AuthDir = ".mokuro-reader"
		}
	}
}

// RedirectURI derives the loopback redirect URI from the callback port.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", c.CallbackPort)
}

// FlowTimeout returns the configured callback deadline as a duration.
// Zero means the orchestrator's default applies.
func (c *Config) FlowTimeout() time.Duration {
	if c.FlowTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.FlowTimeoutSeconds) * time.Second
}
