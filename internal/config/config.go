package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Mode selects which gateway credential pair is in effect.
type Mode string

const (
	// ModeTest uses the sandbox credential pair.
	ModeTest Mode = "test"
	// ModeLive uses the production credential pair.
	ModeLive Mode = "live"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	GatewayBaseURL        string
	GatewayMode           Mode
	TestAccountID         string
	TestAuthSecret        string
	LiveAccountID         string
	LiveAuthSecret        string
	SecretsKey            string
	GatewayConnectTimeout time.Duration
	GatewayRequestTimeout time.Duration
	GatewayActive         bool
	CanRefund             bool

	AsyncSyncEnabled bool
	SyncInterval     time.Duration
	SyncBatchLimit   int

	AlertEnabled    bool
	AlertWebhookURL string

	LockTTL            time.Duration
	LockRetryBackoff   time.Duration
	RateLimitPerMinute int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		GatewayBaseURL:        strings.TrimRight(strings.TrimSpace(k.String("GATEWAY_BASE_URL")), "/"),
		GatewayMode:           parseMode(k.String("GATEWAY_API_MODE")),
		TestAccountID:         k.String("GATEWAY_APIKEY_TEST"),
		TestAuthSecret:        k.String("GATEWAY_APISECRET_TEST"),
		LiveAccountID:         k.String("GATEWAY_APIKEY_LIVE"),
		LiveAuthSecret:        k.String("GATEWAY_APISECRET_LIVE"),
		SecretsKey:            strings.TrimSpace(k.String("SECRETS_KEY")),
		GatewayConnectTimeout: parseDuration(k.String("GATEWAY_CONNECT_TIMEOUT"), "60s"),
		GatewayRequestTimeout: parseDuration(k.String("GATEWAY_REQUEST_TIMEOUT"), "40s"),
		GatewayActive:         parseBool(valueOrDefault(k.String("GATEWAY_ACTIVE"), "true")),
		CanRefund:             parseBool(valueOrDefault(k.String("GATEWAY_CAN_REFUND"), "true")),

		AsyncSyncEnabled: parseBool(valueOrDefault(k.String("ASYNC_SYNC_ENABLED"), "true")),
		SyncInterval:     parseDuration(k.String("SYNC_INTERVAL"), "5m"),
		SyncBatchLimit:   intOrDefault(k.String("SYNC_BATCH_LIMIT"), 50),

		AlertEnabled:    parseBool(k.String("ALERT_ENABLED")),
		AlertWebhookURL: strings.TrimSpace(k.String("ALERT_WEBHOOK_URL")),

		LockTTL:            parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:   parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		RateLimitPerMinute: intOrDefault(k.String("RATE_LIMIT_PER_MINUTE"), 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("GATEWAY_BASE_URL is required")
	}
	if cfg.AlertEnabled && cfg.AlertWebhookURL == "" {
		return nil, errors.New("ALERT_WEBHOOK_URL is required when ALERT_ENABLED is set")
	}
	switch cfg.GatewayMode {
	case ModeTest:
		if cfg.TestAccountID == "" || cfg.TestAuthSecret == "" {
			return nil, errors.New("GATEWAY_APIKEY_TEST and GATEWAY_APISECRET_TEST are required in test mode")
		}
	case ModeLive:
		if cfg.LiveAccountID == "" || cfg.LiveAuthSecret == "" {
			return nil, errors.New("GATEWAY_APIKEY_LIVE and GATEWAY_APISECRET_LIVE are required in live mode")
		}
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func parseMode(value string) Mode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "live", "production":
		return ModeLive
	default:
		return ModeTest
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intOrDefault(value string, def int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def
	}
	var parsed int
	if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
		return def
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
