// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	LogLevel       slog.Level
}

// environment is the raw env-var shape unmarshalled by go-env before
// sanitization.
type environment struct {
	Port                   string `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins         string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize         int64  `env:"MAX_MESSAGE_SIZE,default=4096"`
	RateLimitBurst         int    `env:"RATE_LIMIT_BURST,default=10"`
	RateLimitRefillSeconds int    `env:"RATE_LIMIT_REFILL_INTERVAL,default=1"`
	LogLevel               string `env:"LOG_LEVEL,default=INFO"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		LogLevel: slog.LevelInfo,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to
// defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
		LogLevel: cfg.LogLevel,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv builds a Config from environment variables, falling back
// to defaults for anything unset.
func NewConfigFromEnv() (*Config, error) {
	var raw environment
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg := defaultConfig()
	cfg.Port = raw.Port
	cfg.MaxMessageSize = raw.MaxMessageSize
	cfg.RateLimit.Burst = raw.RateLimitBurst
	if raw.RateLimitRefillSeconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(raw.RateLimitRefillSeconds) * time.Second
	}
	if raw.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseOrigins(raw.AllowedOrigins)
	}
	cfg.LogLevel = parseLogLevel(raw.LogLevel)

	return &cfg, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
