// Package config provides environment-aware configuration management.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration. Every field is populated from
// its tagged environment variable by envdecode, falling back to the default
// given in the tag when the variable is unset.
type Config struct {
	Env Environment `env:"CANDLEWAREHOUSE_ENV,default=development"`

	// Storage
	StorageDriver     string        `env:"STORAGE_DRIVER,default=memory"`
	PostgresDSN       string        `env:"POSTGRES_DSN"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	// Providers
	RichBaseURL     string        `env:"RICH_PROVIDER_BASE_URL,default=https://api.richdata.example.com"`
	RichAPIKey      string        `env:"RICH_PROVIDER_API_KEY"`
	RichTimeout     time.Duration `env:"RICH_PROVIDER_TIMEOUT,default=10s"`
	CryptoBaseURL   string        `env:"CRYPTO_FUTURES_BASE_URL,default=https://fapi.example.com"`
	CryptoAPIKey    string        `env:"CRYPTO_FUTURES_API_KEY"`
	CryptoTimeout   time.Duration `env:"CRYPTO_FUTURES_TIMEOUT,default=10s"`
	FallbackBaseURL string        `env:"FALLBACK_PROVIDER_BASE_URL,default=https://fallback.example.com"`
	FallbackTimeout time.Duration `env:"FALLBACK_PROVIDER_TIMEOUT,default=15s"`

	// Rate limiting
	RichRequestsPerSecond   int `env:"RICH_PROVIDER_RPS,default=5"`
	RichRequestsPerMinute   int `env:"RICH_PROVIDER_RPM,default=5"`
	CryptoRequestsPerSecond int `env:"CRYPTO_FUTURES_RPS,default=10"`
	CryptoRequestsPerMinute int `env:"CRYPTO_FUTURES_RPM,default=1200"`

	// Scheduler
	DailySweepSchedule   string        `env:"DAILY_SWEEP_SCHEDULE,default=0 15 * * *"`
	SchedulerConcurrency int           `env:"SCHEDULER_CONCURRENCY,default=8"`
	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryInitialDelay    time.Duration `env:"RETRY_INITIAL_DELAY,default=2s"`
	RetryMaxDelay        time.Duration `env:"RETRY_MAX_DELAY,default=30s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED,default=false"`
	MetricsPort    int  `env:"METRICS_PORT,default=9090"`
}

// Load loads configuration from environment variables, optionally
// overlaying a matching config/<env>.env file first. CANDLEWAREHOUSE_ENV
// selects the overlay and is re-read after decoding so an .env file can set
// it.
func Load() (*Config, error) {
	envStr := os.Getenv("CANDLEWAREHOUSE_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	configFile := fmt.Sprintf("config/%s.env", envStr)
	if err := godotenv.Load(configFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when none of the tagged fields were present
		// in the environment; that's the expected case for a default-only
		// local run.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode environment: %w", err)
		}
	}

	switch cfg.Env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid CANDLEWAREHOUSE_ENV: %s (must be development, testing, or production)", cfg.Env)
	}
	if cfg.StorageDriver == "postgres" && strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when STORAGE_DRIVER=postgres")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StorageDriver != "memory" && c.StorageDriver != "postgres" {
		return fmt.Errorf("invalid STORAGE_DRIVER: %s (must be memory or postgres)", c.StorageDriver)
	}
	if c.IsProduction() && c.StorageDriver != "postgres" {
		return fmt.Errorf("STORAGE_DRIVER must be postgres in production")
	}
	if c.SchedulerConcurrency < 1 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be at least 1")
	}
	if c.MetricsPort < 1024 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be between 1024 and 65535)", c.MetricsPort)
	}
	return nil
}
