package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultVerifyURL      = "https://www.google.com/recaptcha/api/siteverify"
	DefaultTransportKind  = "http"
	DefaultClientVersion  = "go_1.0.0"
	DefaultTimeoutSeconds = 30
)

type Config struct {
	Secret         string `koanf:"secret" mapstructure:"secret"`
	VerifyURL      string `koanf:"verify_url" mapstructure:"verify_url"`
	Transport      string `koanf:"transport" mapstructure:"transport"`
	TimeoutSeconds int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	ClientVersion  string `koanf:"client_version" mapstructure:"client_version"`
}

func DefaultConfig() Config {
	return Config{
		VerifyURL:      DefaultVerifyURL,
		Transport:      DefaultTransportKind,
		TimeoutSeconds: DefaultTimeoutSeconds,
		ClientVersion:  DefaultClientVersion,
	}
}

// Validate checks structural settings. The secret is checked by NewVerifier
// after secret resolution.
func (c Config) Validate() error {
	rawURL := strings.TrimSpace(c.VerifyURL)
	if rawURL == "" {
		return fmt.Errorf("core: verify_url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("core: verify_url %q is invalid", rawURL)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("core: verify_url scheme %q is invalid", parsed.Scheme)
	}
	if strings.TrimSpace(c.Transport) == "" {
		return fmt.Errorf("core: transport kind is required")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("core: timeout_seconds must not be negative")
	}
	return nil
}

// Timeout returns the transport timeout, falling back to the default.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TransportConfig is the factory config handed to a TransportResolver.
func (c Config) TransportConfig() map[string]any {
	return map[string]any{
		"timeout": c.Timeout(),
	}
}
