package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:       ServerConfig{APIKey: "test-api-key"},
		Orchestrator: OrchestratorConfig{MaxConcurrentJobs: 5, JobTimeout: 5 * time.Minute},
		Extraction:   ExtractionConfig{Bridge: "websocket"},
		Log:          LogConfig{Level: "info"},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"missing api key", func(c *Config) { c.Server.APIKey = "" }, true},
		{"zero capacity", func(c *Config) { c.Orchestrator.MaxConcurrentJobs = 0 }, true},
		{"zero job timeout", func(c *Config) { c.Orchestrator.JobTimeout = 0 }, true},
		{"redis bridge", func(c *Config) { c.Extraction.Bridge = "redis" }, false},
		{"unknown bridge", func(c *Config) { c.Extraction.Bridge = "carrier-pigeon" }, true},
		{"artifacts without credentials", func(c *Config) { c.Artifacts.Enabled = true; c.Artifacts.Bucket = "b" }, true},
		{"artifacts without bucket", func(c *Config) {
			c.Artifacts = ArtifactsConfig{Enabled: true, AccessKey: "a", SecretKey: "s"}
		}, true},
		{"artifacts complete", func(c *Config) {
			c.Artifacts = ArtifactsConfig{Enabled: true, AccessKey: "a", SecretKey: "s", Bucket: "b"}
		}, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 9848},
			want: "0.0.0.0:9848",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		c := LogConfig{Level: in}
		got, err := c.SlogLevel()
		if err != nil || got != want {
			t.Errorf("SlogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "test-api-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9848 {
		t.Errorf("Port = %d, want 9848", cfg.Server.Port)
	}
	if cfg.Orchestrator.MaxConcurrentJobs != 5 {
		t.Errorf("MaxConcurrentJobs = %d, want 5", cfg.Orchestrator.MaxConcurrentJobs)
	}
	if cfg.Orchestrator.JobTimeout != 5*time.Minute || cfg.Orchestrator.FirstPoll != 100*time.Millisecond {
		t.Errorf("orchestrator timings = %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.MaxGIFWidth != 480 || cfg.Orchestrator.MaxGIFHeight != 360 {
		t.Errorf("gif cap = %dx%d", cfg.Orchestrator.MaxGIFWidth, cfg.Orchestrator.MaxGIFHeight)
	}
	if cfg.Queue.Retention != 5*time.Minute {
		t.Errorf("Retention = %v, want 5m", cfg.Queue.Retention)
	}
	if cfg.Extraction.DelegationTimeout != 60*time.Second || cfg.Extraction.SeekTimeout != 2*time.Second {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Encoder.Default != "auto" || cfg.Encoder.Fallback != "websafe" {
		t.Errorf("encoder = %+v", cfg.Encoder)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// envconfig applies defaults over YAML values, so only fields without a
	// default tag keep their YAML value unless the env var is set.
	t.Setenv("SERVER_HOST", "localhost")
	t.Setenv("SERVER_PORT", "8080")

	yamlContent := `
server:
  api_key: "yaml-api-key"
  allowed_origins: ["https://www.youtube.com"]
storage:
  history_path: "/data/history.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("address = %s", cfg.Server.Address())
	}
	if cfg.Server.APIKey != "yaml-api-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Server.APIKey, "yaml-api-key")
	}
	if cfg.Storage.HistoryPath != "/data/history.db" {
		t.Errorf("HistoryPath = %q", cfg.Storage.HistoryPath)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  api_key: "yaml-api-key"
storage:
  history_path: "/yaml/history.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("STORAGE_HISTORY_PATH", "/env/history.db")
	t.Setenv("EXTRACT_BRIDGE", "redis")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.APIKey != "env-api-key" {
		t.Errorf("APIKey should be from env, got %q", cfg.Server.APIKey)
	}
	if cfg.Storage.HistoryPath != "/env/history.db" {
		t.Errorf("HistoryPath should be from env, got %q", cfg.Storage.HistoryPath)
	}
	if cfg.Extraction.Bridge != "redis" {
		t.Errorf("Bridge = %q", cfg.Extraction.Bridge)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
server:
  host: "localhost
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("API_KEY", "")

	if _, err := Load(""); err == nil {
		t.Error("Load should fail validation without required values")
	}
}
