// Package config provides application configuration loading.
// It contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetMaxOpenConns() int
	GetMaxIdleConns() int
	GetConnMaxLifetime() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
	GetCORSOrigins() []string
}

// EngineConfig provides settings for the stage engine.
type EngineConfig interface {
	GetMaxConflictRetries() int
}

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	StoreDriver        string
	DatabaseURL        string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	MaxConflictRetries int
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSOrigins        []string
}

func (c *Config) GetDatabaseURL() string            { return c.DatabaseURL }
func (c *Config) GetMaxOpenConns() int              { return c.MaxOpenConns }
func (c *Config) GetMaxIdleConns() int              { return c.MaxIdleConns }
func (c *Config) GetConnMaxLifetime() time.Duration { return c.ConnMaxLifetime }
func (c *Config) GetHTTPAddr() string               { return c.HTTPAddr }
func (c *Config) GetMaxConflictRetries() int        { return c.MaxConflictRetries }
func (c *Config) GetRateLimitRPS() float64          { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int            { return c.RateLimitBurst }
func (c *Config) GetCORSOrigins() []string          { return c.CORSOrigins }

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MaxOpenConns:       mustInt(getEnv("DB_MAX_OPEN_CONNS", "10"), 10),
		MaxIdleConns:       mustInt(getEnv("DB_MAX_IDLE_CONNS", "5"), 5),
		ConnMaxLifetime:    mustDuration(getEnv("DB_CONN_MAX_LIFETIME", "1h"), time.Hour),
		MaxConflictRetries: mustInt(getEnv("MAX_CONFLICT_RETRIES", "3"), 3),
		RateLimitRPS:       mustFloat(getEnv("RATE_LIMIT_RPS", "20"), 20),
		RateLimitBurst:     mustInt(getEnv("RATE_LIMIT_BURST", "40"), 40),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES cannot be negative, got %d", c.MaxConflictRetries)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func mustDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func mustFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func mustInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
