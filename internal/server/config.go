// Package server provides configuration loading for the duochat service.
// Values come from the environment (optionally seeded from a .env file by
// the caller) with sensible defaults applied afterwards.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// Config holds every runtime setting. There is no reconfiguration after
// process start.
type Config struct {
	Port            string `env:"SERVER_PORT"`
	SharedSecret    string `env:"SHARED_SECRET"`
	MaxParticipants int    `env:"MAX_PARTICIPANTS"`
	AllowedOrigins  string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64  `env:"MAX_MESSAGE_SIZE"`
	RateLimit       RateLimitConfig
	VoiceDBPath     string `env:"VOICE_DB_PATH"`
	StaticDir       string `env:"STATIC_DIR"`
}

// ErrMissingSecret is reported when no shared secret is configured. The
// service refuses to start rather than admitting everybody.
var ErrMissingSecret = errors.New("SHARED_SECRET must be set")

// LoadConfig reads the configuration from the environment and applies
// defaults to everything except the shared secret, which is mandatory.
func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.applyDefaults()
	if cfg.SharedSecret == "" {
		return nil, ErrMissingSecret
	}
	return &cfg, nil
}

// NewConfig returns a Config populated with defaults and the given shared
// secret. Used by tests and by callers that configure programmatically.
func NewConfig(secret string) *Config {
	cfg := Config{SharedSecret: secret}
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = 2
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = "http://localhost:8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.VoiceDBPath == "" {
		c.VoiceDBPath = "voice_messages"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
}

// Origins returns the configured origin allow-list as individual entries.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
