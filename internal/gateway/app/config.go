package app

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/northplain/idgate/internal/gateway/domain"
)

type Config struct {
	OIDCIssuer   string // Required: expected `iss` of incoming identity tokens
	OIDCAudience string // Required: expected `aud` (the provider client id)
	JWKSURL      string // Optional: defaults to <issuer>.well-known/jwks.json

	DefaultMFAMethod domain.MFAMethod // Optional: method suggested at first contact (default: totp)
	CodeTTL          time.Duration    // Optional: emailed code lifetime (default: 5m)
	MFAIssuerLabel   string           // Optional: issuer label in provisioning URIs (default: idgate)

	DatabaseFile string // Optional: path to SQLite database file (default: ./gateway.db)
	RedisAddr    string // Optional: one-time code store address (default: localhost:6379)

	SMTPHost     string // Required when email MFA is offered
	SMTPPort     int    // Optional: default 587
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string // Optional: defaults to SMTPUsername

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	PendingMaxAge        time.Duration // Age at which unverified enrollments are swept (default: 24h)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		OIDCIssuer:   os.Getenv("GATEWAY_OIDC_ISSUER"),
		OIDCAudience: os.Getenv("GATEWAY_OIDC_AUDIENCE"),
		JWKSURL:      os.Getenv("GATEWAY_JWKS_URL"),

		CodeTTL:        getEnvDurationOrDefault("GATEWAY_CODE_TTL", 5*time.Minute),
		MFAIssuerLabel: getEnvOrDefault("GATEWAY_MFA_ISSUER", "idgate"),

		DatabaseFile: getEnvOrDefault("GATEWAY_DATABASE_FILE", "gateway.db"),
		RedisAddr:    getEnvOrDefault("GATEWAY_REDIS_ADDR", "localhost:6379"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", os.Getenv("SMTP_USERNAME")),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		PendingMaxAge:        getEnvDurationOrDefault("GATEWAY_PENDING_MAX_AGE", 24*time.Hour),
	}

	if cfg.OIDCIssuer == "" {
		return Config{}, errors.New("GATEWAY_OIDC_ISSUER is required")
	}
	if cfg.OIDCAudience == "" {
		return Config{}, errors.New("GATEWAY_OIDC_AUDIENCE is required")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = cfg.OIDCIssuer + ".well-known/jwks.json"
	}

	method, ok := domain.ParseMFAMethod(getEnvOrDefault("GATEWAY_DEFAULT_MFA_METHOD", "totp"))
	if !ok {
		return Config{}, errors.New("GATEWAY_DEFAULT_MFA_METHOD must be totp or email")
	}
	cfg.DefaultMFAMethod = method

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "5m", "300s" style first, bare seconds as a fallback
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
