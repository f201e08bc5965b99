// Package config provides configuration for the clinic assistant ingress.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the ingress configuration.
type Config struct {
	// Server settings
	WSPort   int // External WebSocket port
	HTTPPort int // Internal HTTP port for /health, /metrics, /internal/*

	// Clinic backend settings
	ClinicAPIURL string
	CallTimeout  time.Duration

	// Auth settings
	APIKey string // Static API key for hello.api_key validation

	// Session settings
	IdleTimeout time.Duration

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Transcript archive; empty disables it
	TranscriptDSN string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		WSPort:         getEnvInt("WS_PORT", 8090),
		HTTPPort:       getEnvInt("HTTP_PORT", 8091),
		ClinicAPIURL:   getEnv("CLINIC_API_URL", "http://localhost:8001/api"),
		CallTimeout:    getEnvMillis("CLINIC_CALL_TIMEOUT_MS", 30000),
		APIKey:         getEnv("API_KEY", ""),
		IdleTimeout:    getEnvMillis("SESSION_IDLE_TIMEOUT_MS", 300000),
		PingInterval:   getEnvMillis("WS_PING_INTERVAL_MS", 30000),
		WriteTimeout:   getEnvMillis("WS_WRITE_TIMEOUT_MS", 10000),
		ReadTimeout:    getEnvMillis("WS_READ_TIMEOUT_MS", 60000),
		MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		TranscriptDSN:  getEnv("TRANSCRIPT_DB", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvMillis reads a duration in milliseconds. Values <= 0 fall back to
// the default.
func getEnvMillis(key string, defaultMs int) time.Duration {
	ms := getEnvInt(key, defaultMs)
	if ms <= 0 {
		ms = defaultMs
	}
	return time.Duration(ms) * time.Millisecond
}
