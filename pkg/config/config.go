package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Processing ProcessingConfig
	OTEL       OTELConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ProcessingConfig holds defaults for the AI batch orchestrator.
// Per-provider values stored alongside the provider override these.
type ProcessingConfig struct {
	DefaultMaxThreads     int
	DefaultMaxRetries     int
	RequestTimeoutSeconds int
	EventChannelPrefix    string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "catalog_annotation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Processing: ProcessingConfig{
			DefaultMaxThreads:     getEnvAsInt("AI_DEFAULT_MAX_THREADS", 50),
			DefaultMaxRetries:     getEnvAsInt("AI_DEFAULT_MAX_RETRIES", 3),
			RequestTimeoutSeconds: getEnvAsInt("AI_REQUEST_TIMEOUT_SECONDS", 60),
			EventChannelPrefix:    getEnv("BATCH_EVENT_CHANNEL_PREFIX", "batch:"),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "catalog-annotation"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Processing.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the orchestrator defaults are usable.
func (c *ProcessingConfig) Validate() error {
	if c.DefaultMaxThreads < 1 {
		return fmt.Errorf("AI_DEFAULT_MAX_THREADS must be >= 1, got %d", c.DefaultMaxThreads)
	}
	if c.DefaultMaxRetries < 1 {
		return fmt.Errorf("AI_DEFAULT_MAX_RETRIES must be >= 1, got %d", c.DefaultMaxRetries)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("AI_REQUEST_TIMEOUT_SECONDS must be >= 1, got %d", c.RequestTimeoutSeconds)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
