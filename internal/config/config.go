// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Gemini provider settings.
	GeminiAPIKey string
	GeminiModel  string

	// FrameInterval is the cadence at which inbound screen frames are
	// forwarded to the analyzer; frames arriving faster are dropped.
	FrameInterval     time.Duration
	AnalyzerTimeout   time.Duration
	CompletionTimeout time.Duration

	// SendBufferSize is the per-session outbound event buffer.
	SendBufferSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/assist.db"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		FrameInterval:     getEnvDurationMs("FRAME_INTERVAL_MS", 500*time.Millisecond),
		AnalyzerTimeout:   getEnvDurationMs("ANALYZER_TIMEOUT_MS", 15*time.Second),
		CompletionTimeout: getEnvDurationMs("COMPLETION_TIMEOUT_MS", 30*time.Second),
		SendBufferSize:    getEnvInt("SEND_BUFFER_SIZE", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("FRAME_INTERVAL_MS must be > 0")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDurationMs(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
