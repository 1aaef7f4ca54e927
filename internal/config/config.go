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
	// Client settings.
	APIBaseURL        string
	RequestTimeout    time.Duration
	StreamIdleTimeout time.Duration
	DBPath            string

	// Stub backend settings.
	Stub StubConfig
}

// StubConfig controls the development stub backend.
type StubConfig struct {
	Port             string
	FrontendURL      string
	RateLimitPerMin  int
	TokenDelay       time.Duration
	StreamRetryDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:8081/api"),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		StreamIdleTimeout: getEnvDuration("STREAM_IDLE_TIMEOUT", 180*time.Second),
		DBPath:            getEnv("DB_PATH", "./data/skillstream.db"),
		Stub: StubConfig{
			Port:             getEnv("STUB_PORT", "8081"),
			FrontendURL:      getEnv("FRONTEND_URL", ""),
			RateLimitPerMin:  getEnvInt("STUB_RATE_LIMIT_PER_MIN", 30),
			TokenDelay:       getEnvDuration("STUB_TOKEN_DELAY", 20*time.Millisecond),
			StreamRetryDelay: getEnvDuration("STUB_STREAM_RETRY_DELAY", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.StreamIdleTimeout <= 0 {
		return fmt.Errorf("STREAM_IDLE_TIMEOUT must be > 0")
	}
	if c.Stub.Port == "" {
		return fmt.Errorf("STUB_PORT cannot be empty")
	}
	if c.Stub.RateLimitPerMin <= 0 {
		return fmt.Errorf("STUB_RATE_LIMIT_PER_MIN must be > 0")
	}
	return nil
}

// IsDevelopment returns true if the stub serves a local frontend.
func (c *Config) IsDevelopment() bool {
	return c.Stub.FrontendURL == "" ||
		strings.Contains(c.Stub.FrontendURL, "localhost") ||
		strings.Contains(c.Stub.FrontendURL, "127.0.0.1")
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
