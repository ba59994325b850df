package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	"github.com/goliatone/go-recaptcha/core"
)

// settings holds daemon wiring read from the environment. Verifier settings
// (RECAPTCHA_SECRET, RECAPTCHA_VERIFY_URL, ...) are loaded by the verifier's
// own config provider.
type settings struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	LogLevel        string        `koanf:"log_level" mapstructure:"log_level"`
	DBDriver        string        `koanf:"db_driver" mapstructure:"db_driver"`
	DBDSN           string        `koanf:"db_dsn" mapstructure:"db_dsn"`
	DBDebug         bool          `koanf:"db_debug" mapstructure:"db_debug"`
	CacheTTL        time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	AppKey          string        `koanf:"app_key" mapstructure:"app_key"`
	RateLimit       int           `koanf:"rate_limit" mapstructure:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window" mapstructure:"rate_window"`
	ProtectedAction string        `koanf:"protected_action" mapstructure:"protected_action"`
	RetainFor       time.Duration `koanf:"retain_for" mapstructure:"retain_for"`
	PruneEvery      time.Duration `koanf:"prune_every" mapstructure:"prune_every"`
}

func defaultSettings() settings {
	return settings{
		Addr:            ":8080",
		LogLevel:        "info",
		RateLimit:       60,
		RateWindow:      time.Minute,
		ProtectedAction: "submit",
		PruneEvery:      time.Hour,
	}
}

func (s *settings) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("addr is required")
	}
	if s.DBDriver != "" && s.DBDSN == "" {
		return errors.New("RECAPTCHA_DB_DSN is required when RECAPTCHA_DB_DRIVER is set")
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %d", s.RateLimit)
	}
	for name, value := range map[string]time.Duration{
		"cache_ttl":   s.CacheTTL,
		"rate_window": s.RateWindow,
		"retain_for":  s.RetainFor,
		"prune_every": s.PruneEvery,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// settingsEnvKeys maps settings keys to their environment variables.
var settingsEnvKeys = map[string]string{
	"addr":             "RECAPTCHA_ADDR",
	"log_level":        "LOG_LEVEL",
	"db_driver":        "RECAPTCHA_DB_DRIVER",
	"db_dsn":           "RECAPTCHA_DB_DSN",
	"db_debug":         "RECAPTCHA_DB_DEBUG",
	"cache_ttl":        "RECAPTCHA_CACHE_TTL",
	"app_key":          "RECAPTCHA_APP_KEY",
	"rate_limit":       "RECAPTCHA_RATE_LIMIT",
	"rate_window":      "RECAPTCHA_RATE_WINDOW",
	"protected_action": "RECAPTCHA_PROTECTED_ACTION",
	"retain_for":       "RECAPTCHA_RETAIN_FOR",
	"prune_every":      "RECAPTCHA_PRUNE_EVERY",
}

// envSettingsLoader reads daemon settings as a raw map for cfgx.
type envSettingsLoader struct {
	Lookup func(key string) (string, bool)
}

var _ core.RawConfigLoader = envSettingsLoader{}

func (l envSettingsLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for key, env := range settingsEnvKeys {
		if value, ok := lookup(env); ok && strings.TrimSpace(value) != "" {
			raw[key] = strings.TrimSpace(value)
		}
	}
	return raw, nil
}

func loadSettings(ctx context.Context, loader core.RawConfigLoader) (settings, error) {
	if loader == nil {
		loader = envSettingsLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return settings{}, err
	}
	return cfgx.Build[settings](raw,
		cfgx.WithDefaults(defaultSettings()),
		cfgx.WithValidator[settings]((*settings).Validate),
	)
}
