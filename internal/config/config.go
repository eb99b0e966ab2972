// Package config loads and validates all runtime configuration for the
// gateway.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file. A .env file in
// the working directory, if present, is loaded into the process environment
// first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 3000.
	Port int

	// LogLevel controls the minimum level of the ambient slog logger.
	// One of: debug, info, warn, error. Default: info.
	LogLevel string

	// GroqAPIKey is the bearer credential sent to the upstream LLM API.
	// Required — startup aborts if absent.
	GroqAPIKey string

	// RedisURL is the exact-tier key/value store connection string.
	RedisURL string

	// QdrantURL is the vector-tier gRPC endpoint.
	QdrantURL string

	// EmbeddingURL is the embedding service's /embed endpoint.
	EmbeddingURL string

	// LogPath is the request log file path.
	LogPath string

	// ClickHouseDSN optionally enables the analytics sink. Empty disables it.
	ClickHouseDSN string

	// CORSOrigins is the list of allowed CORS origins for the dashboard's
	// polling requests. ["*"] allows any origin (default).
	CORSOrigins []string

	// CircuitBreaker controls the upstream circuit breaker's thresholds.
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig controls the single upstream circuit breaker.
type CircuitBreakerConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 3000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_URL", "redis://127.0.0.1:6379")
	v.SetDefault("QDRANT_URL", "http://127.0.0.1:6334")
	v.SetDefault("EMBEDDING_URL", "http://127.0.0.1:8001/embed")
	v.SetDefault("LOG_PATH", "./requests.log")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		GroqAPIKey: v.GetString("GROQ_API_KEY"),

		RedisURL:     v.GetString("REDIS_URL"),
		QdrantURL:    v.GetString("QDRANT_URL"),
		EmbeddingURL: v.GetString("EMBEDDING_URL"),
		LogPath:      v.GetString("LOG_PATH"),

		ClickHouseDSN: v.GetString("CLICKHOUSE_DSN"),

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// viper defaults. A ConfigError aborts the process per spec.md §7.
func (c *Config) validate() error {
	if c.GroqAPIKey == "" {
		return fmt.Errorf("config: GROQ_API_KEY is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be >= 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
	}
	if c.CircuitBreaker.HalfOpenTimeout <= 0 {
		return fmt.Errorf("config: CB_HALF_OPEN_TIMEOUT must be a positive duration")
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
