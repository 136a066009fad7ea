package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RelayConfig holds the relay server settings, read from the environment
type RelayConfig struct {
	Port          string
	Env           string
	DatabasePath  string
	HistoryLimit  int
	HistoryRetain int
	LogLevel      string
}

// LoadRelay reads relay configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func LoadRelay() (*RelayConfig, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &RelayConfig{
		Port:         getEnv("PORT", "8989"),
		Env:          getEnv("ENV", "development"),
		DatabasePath: os.Getenv("DATABASE_PATH"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.HistoryRetain, err = getEnvInt("HISTORY_RETAIN", 1000); err != nil {
		return nil, err
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be a number, got %q", cfg.Port)
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.HistoryRetain > 0 && cfg.HistoryRetain < cfg.HistoryLimit {
		return nil, fmt.Errorf("HISTORY_RETAIN (%d) must not be below HISTORY_LIMIT (%d)", cfg.HistoryRetain, cfg.HistoryLimit)
	}

	// In production, history must survive restarts
	if !cfg.IsDevelopment() && cfg.DatabasePath == "" {
		return nil, fmt.Errorf("DATABASE_PATH is required in %s", cfg.Env)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *RelayConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address
func (c *RelayConfig) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, value)
	}
	return n, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
