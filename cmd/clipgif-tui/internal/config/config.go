// Package config provides configuration management for the clipgif TUI.
package config

import (
	"os"
	"time"
)

// Config holds the TUI configuration.
type Config struct {
	// Server connection
	ServerURL string
	APIKey    string

	// Refresh intervals
	StatusRefresh  time.Duration
	RequestTimeout time.Duration

	// EventLimit is how many recent hub messages the events panel shows.
	EventLimit int
}

// Load returns configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ServerURL:      getEnv("CLIPGIF_SERVER", "http://localhost:9848"),
		APIKey:         getEnv("CLIPGIF_API_KEY", os.Getenv("API_KEY")),
		StatusRefresh:  getDuration("CLIPGIF_STATUS_REFRESH", 2*time.Second),
		RequestTimeout: getDuration("CLIPGIF_REQUEST_TIMEOUT", 10*time.Second),
		EventLimit:     50,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
