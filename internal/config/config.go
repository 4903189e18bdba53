// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbd888/streamvault/internal/security"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendJSON     = "json"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Signing
	SignerPrivateKey string // hex secp256k1 key, with or without 0x

	// External scorer
	ScorerURL         string
	ScorerTimeout     time.Duration
	ScorerMaxAttempts int

	// Persistence
	StoreBackend string
	DataFile     string // json backend
	BoltPath     string // bolt backend
	DatabaseURL  string // postgres backend

	// Pools
	PoolsFile string // optional JSON array of pool definitions

	// HTTP
	CORSOrigins        []string
	RateLimitPerMinute int // evaluation requests per client IP; 0 disables
	RateLimitBurst     int

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultScorerURL         = "http://localhost:8000"
	DefaultScorerTimeout     = 10 * time.Second
	DefaultScorerMaxAttempts = 2
	DefaultStoreBackend      = BackendJSON
	DefaultDataFile          = "data/db.json"
	DefaultBoltPath          = "data/streamvault.db"
	DefaultCORSOrigin        = "http://localhost:3000"
	DefaultRateLimit         = 30
	DefaultRateLimitBurst    = 5
)

// ConfigurationError is a fatal startup problem with one setting.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Key + " " + e.Message
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		SignerPrivateKey:   os.Getenv("SIGNER_PRIVATE_KEY"),
		ScorerURL:          getEnv("SCORER_URL", DefaultScorerURL),
		ScorerTimeout:      getEnvDuration("SCORER_TIMEOUT", DefaultScorerTimeout),
		ScorerMaxAttempts:  int(getEnvInt64("SCORER_MAX_ATTEMPTS", DefaultScorerMaxAttempts)),
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", DefaultStoreBackend)),
		DataFile:           getEnv("DATA_FILE", DefaultDataFile),
		BoltPath:           getEnv("BOLT_PATH", DefaultBoltPath),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PoolsFile:          os.Getenv("POOLS_FILE"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", DefaultCORSOrigin)),
		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_PER_MINUTE", DefaultRateLimit)),
		RateLimitBurst:     int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present. The service
// refuses to start without a usable signing key.
func (c *Config) Validate() error {
	key := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(c.SignerPrivateKey), "0x"), "0X")
	if key == "" {
		return &ConfigurationError{Key: "SIGNER_PRIVATE_KEY", Message: "is required"}
	}
	if len(key) != 64 || !isHex(key) {
		return &ConfigurationError{Key: "SIGNER_PRIVATE_KEY", Message: "must be 64 hex characters (with or without 0x prefix)"}
	}

	if c.ScorerURL == "" {
		return &ConfigurationError{Key: "SCORER_URL", Message: "is required"}
	}
	if err := security.ValidateServiceURL(c.ScorerURL); err != nil {
		return &ConfigurationError{Key: "SCORER_URL", Message: err.Error()}
	}
	if c.ScorerTimeout <= 0 {
		return &ConfigurationError{Key: "SCORER_TIMEOUT", Message: "must be a positive duration"}
	}
	if c.RateLimitPerMinute < 0 {
		return &ConfigurationError{Key: "RATE_LIMIT_PER_MINUTE", Message: "must not be negative"}
	}
	if c.ScorerMaxAttempts < 1 {
		return &ConfigurationError{Key: "SCORER_MAX_ATTEMPTS", Message: "must be at least 1"}
	}

	switch c.StoreBackend {
	case BackendJSON:
		if c.DataFile == "" {
			return &ConfigurationError{Key: "DATA_FILE", Message: "is required for the json backend"}
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return &ConfigurationError{Key: "BOLT_PATH", Message: "is required for the bolt backend"}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return &ConfigurationError{Key: "DATABASE_URL", Message: "is required for the postgres backend"}
		}
	default:
		return &ConfigurationError{Key: "STORE_BACKEND", Message: fmt.Sprintf("must be one of json, bolt, postgres (got %q)", c.StoreBackend)}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return &ConfigurationError{Key: "LOG_FORMAT", Message: "must be text or json"}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
