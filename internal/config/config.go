// Package config provides configuration management for the review-request
// backfill service. It loads configuration from environment variables and
// .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Platform  PlatformConfig
	Email     EmailConfig
	Backfill  BackfillConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
// ClickHouse is optional; an empty host disables the dispatch-outcome log.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PlatformConfig holds commerce platform API configuration
type PlatformConfig struct {
	ProductionURL  string
	SandboxURL     string
	RequestsPerSec float64
	Timeout        time.Duration
}

// EmailConfig holds outbound email configuration.
// An empty API key selects the noop sender.
type EmailConfig struct {
	ResendAPIKey   string
	FromAddress    string
	SendRetries    int
	ReviewLinkBase string // review pages live outside this service
}

// BackfillConfig holds pipeline tunables
type BackfillConfig struct {
	LookbackWindow      time.Duration // recontact exclusion window
	DefaultMaxCustomers int
	MaxCustomersCap     int // server-side upper bound on the request cap
	PageSize            int // customers requested per platform page
	JobTimeout          time.Duration // force-fail bound on a single job
	ImportRetries       int
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSec int
	Burst          int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "review_backfill"),
				User:           getEnv("POSTGRES_USER", "backfill"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "review_backfill"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Platform: PlatformConfig{
			ProductionURL:  getEnv("PLATFORM_API_URL", "https://connect.commerceapi.com"),
			SandboxURL:     getEnv("PLATFORM_SANDBOX_API_URL", "https://connect.commerceapi-sandbox.com"),
			RequestsPerSec: getEnvAsFloat("PLATFORM_REQUESTS_PER_SEC", 5),
			Timeout:        getEnvAsDuration("PLATFORM_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			ResendAPIKey:   getEnv("RESEND_API_KEY", ""),
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", "reviews@localhost"),
			SendRetries:    getEnvAsInt("EMAIL_SEND_RETRIES", 3),
			ReviewLinkBase: getEnv("REVIEW_LINK_BASE", "https://reviews.localhost/r"),
		},
		Backfill: BackfillConfig{
			LookbackWindow:      getEnvAsDuration("BACKFILL_LOOKBACK_WINDOW", 90*24*time.Hour),
			DefaultMaxCustomers: getEnvAsInt("BACKFILL_DEFAULT_MAX_CUSTOMERS", 200),
			MaxCustomersCap:     getEnvAsInt("BACKFILL_MAX_CUSTOMERS_CAP", 500),
			PageSize:            getEnvAsInt("BACKFILL_PAGE_SIZE", 100),
			JobTimeout:          getEnvAsDuration("BACKFILL_JOB_TIMEOUT", 10*time.Minute),
			ImportRetries:       getEnvAsInt("BACKFILL_IMPORT_RETRIES", 3),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSec: getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:          getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate rejects configurations the pipeline cannot run with
func (c *Config) validate() error {
	if c.Backfill.LookbackWindow <= 0 {
		return fmt.Errorf("BACKFILL_LOOKBACK_WINDOW must be positive")
	}
	if c.Backfill.DefaultMaxCustomers <= 0 || c.Backfill.DefaultMaxCustomers > c.Backfill.MaxCustomersCap {
		return fmt.Errorf("BACKFILL_DEFAULT_MAX_CUSTOMERS must be in [1, %d]", c.Backfill.MaxCustomersCap)
	}
	if c.Backfill.JobTimeout <= 0 {
		return fmt.Errorf("BACKFILL_JOB_TIMEOUT must be positive")
	}
	if c.Backfill.PageSize <= 0 {
		return fmt.Errorf("BACKFILL_PAGE_SIZE must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
