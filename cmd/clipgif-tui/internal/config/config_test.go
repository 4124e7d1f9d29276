package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("CLIPGIF_SERVER", "")
	t.Setenv("CLIPGIF_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("CLIPGIF_STATUS_REFRESH", "")

	cfg := Load()

	if cfg.ServerURL != "http://localhost:9848" {
		t.Errorf("expected default server, got '%s'", cfg.ServerURL)
	}
	if cfg.APIKey != "" {
		t.Errorf("expected empty api key, got '%s'", cfg.APIKey)
	}
	if cfg.StatusRefresh != 2*time.Second {
		t.Errorf("expected 2s refresh, got %v", cfg.StatusRefresh)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CLIPGIF_SERVER", "http://gif.internal:8080")
	t.Setenv("CLIPGIF_API_KEY", "secret")
	t.Setenv("CLIPGIF_STATUS_REFRESH", "750ms")

	cfg := Load()

	if cfg.ServerURL != "http://gif.internal:8080" {
		t.Errorf("expected custom server, got '%s'", cfg.ServerURL)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("expected custom api key, got '%s'", cfg.APIKey)
	}
	if cfg.StatusRefresh != 750*time.Millisecond {
		t.Errorf("expected 750ms refresh, got %v", cfg.StatusRefresh)
	}
}

func TestLoadFallsBackToServerAPIKey(t *testing.T) {
	t.Setenv("CLIPGIF_API_KEY", "")
	t.Setenv("API_KEY", "shared")

	if cfg := Load(); cfg.APIKey != "shared" {
		t.Errorf("expected API_KEY fallback, got '%s'", cfg.APIKey)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("CLIPGIF_STATUS_REFRESH", "soon")

	if cfg := Load(); cfg.StatusRefresh != 2*time.Second {
		t.Errorf("expected default on invalid duration, got %v", cfg.StatusRefresh)
	}
}
