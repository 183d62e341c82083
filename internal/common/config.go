package common

import (
	"os"
	"strconv"
	"time"

	"github.com/toyiyo/nimble-pnl-sub019/constants"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Provider   ProviderConfig
	Categorize CategorizeConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// ProviderConfig holds LLM provider configuration
type ProviderConfig struct {
	BaseURL              string
	APIKey               string
	RequestTimeout       time.Duration
	DownloadTimeout      time.Duration
	MaxDocumentBytes     int
	ReceiptStreamLimit   int
	StatementStreamLimit int
}

// CategorizeConfig holds transaction auto-categorizer configuration
type CategorizeConfig struct {
	Model     string
	BatchSize int
	Timeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:      getEnv("HTTP_ADDR", ":8080"),
			AuthToken: getEnv("API_AUTH_TOKEN", ""),
		},
		Provider: ProviderConfig{
			BaseURL:              getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:               getEnv("OPENROUTER_API_KEY", ""),
			RequestTimeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 120*time.Second),
			DownloadTimeout:      getEnvAsDuration("DOCUMENT_DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxDocumentBytes:     getEnvAsInt("MAX_DOCUMENT_BYTES", constants.MaxDocumentBytes),
			ReceiptStreamLimit:   getEnvAsInt("RECEIPT_STREAM_LIMIT", constants.ReceiptStreamLimitBytes),
			StatementStreamLimit: getEnvAsInt("STATEMENT_STREAM_LIMIT", constants.StatementStreamLimitBytes),
		},
		Categorize: CategorizeConfig{
			Model:     getEnv("CATEGORIZE_MODEL", "openai/gpt-4o-mini"),
			BatchSize: getEnvAsInt("CATEGORIZE_BATCH_SIZE", 40),
			Timeout:   getEnvAsDuration("CATEGORIZE_TIMEOUT", 60*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Provider.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENROUTER_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
