package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Extractor ExtractorConfig
	Watch     WatchConfig
	LLM       LLMConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
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
	Addr            string
	InternalAPIKey  string // empty disables auth
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxConcurrency  int64
	ShutdownTimeout time.Duration
}

// ExtractorConfig holds text-extraction tool configuration
type ExtractorConfig struct {
	Pdftotext string
	Pdfinfo   string
	MaxBytes  int64
}

// WatchConfig holds directory watcher configuration
type WatchConfig struct {
	Roots       []string
	InitialScan bool
	Debounce    time.Duration
	Mode        string // extraction mode for watched files: "regex" | "llm" | "hybrid"
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider    string // "gemini" | "openai" | "" (regex only)
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	Lenient     bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "docent.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			InternalAPIKey:  getEnv("INTERNAL_API_KEY", ""),
			RateLimitRPS:    getEnvAsFloat64("RATE_LIMIT_RPS", 5),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 10),
			MaxConcurrency:  int64(getEnvAsInt("MAX_CONCURRENCY", 8)),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Extractor: ExtractorConfig{
			Pdftotext: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdfinfo:   getEnv("PDFINFO_BIN", "pdfinfo"),
			MaxBytes:  int64(getEnvAsInt("MAX_FILE_BYTES", 32<<20)),
		},
		Watch: WatchConfig{
			Roots:       splitNonEmpty(getEnv("WATCH_DIRS", "")),
			InitialScan: getEnv("WATCH_INITIAL_SCAN", "true") == "true",
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			Mode:        getEnv("WATCH_MODE", "regex"),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", ""),
			Model:       getEnv("LLM_MODEL", ""),
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			Lenient:     getEnv("LLM_LENIENT", "true") == "true",
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "gemini" && c.LLM.Provider != "openai" {
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be gemini or openai", ErrInvalidInput)
	}
	if m := c.Watch.Mode; m != "" && m != "regex" && m != "llm" && m != "hybrid" {
		return NewAppError("CONFIG_ERROR", "WATCH_MODE must be regex, llm or hybrid", ErrInvalidInput)
	}
	return nil
}
