// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Quota backends.
const (
	QuotaBackendRedis    = "redis"
	QuotaBackendPostgres = "postgres"
	QuotaBackendMemory   = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout must exceed SMTPTimeout or slow relays
	// are cut off before the delivery error can be written.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"45s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Delivery
	SMTPTimeout time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`
	// 64 hex chars; seals SMTP passwords at rest.
	SMTPSecretKey string `env:"SMTP_SECRET_KEY,required,unset"`

	// Quota
	QuotaBackend      string        `env:"QUOTA_BACKEND" envDefault:"redis"`
	QuotaWindow       time.Duration `env:"QUOTA_WINDOW" envDefault:"24h"`
	DefaultDailyLimit int64         `env:"DEFAULT_DAILY_LIMIT" envDefault:"100"`

	// Rate limiting
	RateLimitAPIEnabled  bool    `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM      int     `env:"RATE_LIMIT_API_RPM" envDefault:"120"`
	RateLimitAPIBurst    int     `env:"RATE_LIMIT_API_BURST" envDefault:"20"`
	RateLimitSendEnabled bool    `env:"RATE_LIMIT_SEND_ENABLED" envDefault:"true"`
	RateLimitSendRPS     float64 `env:"RATE_LIMIT_SEND_RPS" envDefault:"10"`
	RateLimitSendBurst   int     `env:"RATE_LIMIT_SEND_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Analytics
	AnalyticsEnabled bool `env:"ANALYTICS_ENABLED" envDefault:"true"`

	// Public template lookups are cached in process for this long.
	TemplateCacheTTL time.Duration `env:"TEMPLATE_CACHE_TTL" envDefault:"1m"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate rejects values the env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"development", "staging", "production", "test"}, c.AppEnv) {
		errs = append(errs, fmt.Errorf("APP_ENV: unknown environment %q", c.AppEnv))
	}
	if c.AppPort < 1 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT: %d out of range", c.AppPort))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be json or text, got %q", c.LogFormat))
	}
	if !slices.Contains([]string{QuotaBackendRedis, QuotaBackendPostgres, QuotaBackendMemory}, c.QuotaBackend) {
		errs = append(errs, fmt.Errorf("QUOTA_BACKEND: unknown backend %q", c.QuotaBackend))
	}
	if c.QuotaWindow < time.Minute {
		errs = append(errs, fmt.Errorf("QUOTA_WINDOW: must be at least 1m, got %s", c.QuotaWindow))
	}
	if c.DefaultDailyLimit < -1 {
		errs = append(errs, fmt.Errorf("DEFAULT_DAILY_LIMIT: must be -1 or more, got %d", c.DefaultDailyLimit))
	}
	if c.SMTPTimeout <= 0 {
		errs = append(errs, errors.New("SMTP_TIMEOUT: must be positive"))
	}
	if key, err := hex.DecodeString(c.SMTPSecretKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("SMTP_SECRET_KEY: must be 64 hex characters"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE: must be positive"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Variables already set in the environment win over
// the file.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given files (default ".env") into the environment.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
