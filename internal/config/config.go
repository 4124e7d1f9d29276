package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Queue        QueueConfig        `yaml:"queue"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Encoder      EncoderConfig      `yaml:"encoder"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Events       EventsConfig       `yaml:"events"`
	Redis        RedisConfig        `yaml:"redis"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts"`
	Download     DownloadConfig     `yaml:"download"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"6m"`
	// AllowedOrigins lists extra CORS origins besides browser extensions.
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"SERVER_ALLOWED_ORIGINS"`
}

// StorageConfig holds local filesystem paths.
type StorageConfig struct {
	TempPath    string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/tmp/clipgif"`
	HistoryPath string `yaml:"history_path" envconfig:"STORAGE_HISTORY_PATH"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	Retention     time.Duration `yaml:"retention" envconfig:"QUEUE_RETENTION" default:"5m"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"QUEUE_SWEEP_INTERVAL" default:"1m"`
	StopTimeout   time.Duration `yaml:"stop_timeout" envconfig:"QUEUE_STOP_TIMEOUT" default:"30s"`
}

// ExtractionConfig holds frame extraction timing.
type ExtractionConfig struct {
	SeekTimeout       time.Duration `yaml:"seek_timeout" envconfig:"EXTRACT_SEEK_TIMEOUT" default:"2s"`
	FrameBudget       time.Duration `yaml:"frame_budget" envconfig:"EXTRACT_FRAME_BUDGET" default:"100ms"`
	DelegationTimeout time.Duration `yaml:"delegation_timeout" envconfig:"EXTRACT_DELEGATION_TIMEOUT" default:"60s"`
	// Bridge selects how delegated extraction reaches the browser: websocket or redis.
	Bridge string `yaml:"bridge" envconfig:"EXTRACT_BRIDGE" default:"websocket"`
}

// EncoderConfig holds encoder backend configuration.
type EncoderConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH" default:"ffprobe"`
	Default     string `yaml:"default" envconfig:"ENCODER_DEFAULT" default:"auto"`
	Fallback    string `yaml:"fallback" envconfig:"ENCODER_FALLBACK" default:"websafe"`
}

// OrchestratorConfig controls job tracking and client-side polling.
type OrchestratorConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" envconfig:"ORCH_MAX_CONCURRENT_JOBS" default:"5"`
	FirstPoll         time.Duration `yaml:"first_poll" envconfig:"ORCH_FIRST_POLL" default:"100ms"`
	PollInterval      time.Duration `yaml:"poll_interval" envconfig:"ORCH_POLL_INTERVAL" default:"1s"`
	JobTimeout        time.Duration `yaml:"job_timeout" envconfig:"ORCH_JOB_TIMEOUT" default:"5m"`
	ProgressInterval  time.Duration `yaml:"progress_interval" envconfig:"ORCH_PROGRESS_INTERVAL" default:"500ms"`
	MaxGIFWidth       int           `yaml:"max_gif_width" envconfig:"ORCH_MAX_GIF_WIDTH" default:"480"`
	MaxGIFHeight      int           `yaml:"max_gif_height" envconfig:"ORCH_MAX_GIF_HEIGHT" default:"360"`
}

// EventsConfig configures the message hub.
type EventsConfig struct {
	RingBufferSize  int    `yaml:"ring_buffer_size" envconfig:"EVENTS_RING_BUFFER_SIZE" default:"1000"`
	PersistToSQLite bool   `yaml:"persist" envconfig:"EVENTS_PERSIST" default:"false"`
	SQLitePath      string `yaml:"sqlite_path" envconfig:"EVENTS_SQLITE_PATH" default:"/tmp/clipgif/events.db"`
	RetentionDays   int    `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"7"`
}

// RedisConfig configures the Redis extraction bridge.
type RedisConfig struct {
	Addr        string `yaml:"addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password    string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB          int    `yaml:"db" envconfig:"REDIS_DB" default:"0"`
	RequestKey  string `yaml:"request_key" envconfig:"REDIS_REQUEST_KEY" default:"clipgif:extract:requests"`
	ReplyPrefix string `yaml:"reply_prefix" envconfig:"REDIS_REPLY_PREFIX" default:"clipgif:extract:reply:"`
}

// ArtifactsConfig configures optional GIF uploads to S3-compatible storage.
type ArtifactsConfig struct {
	Enabled   bool          `yaml:"enabled" envconfig:"ARTIFACTS_ENABLED" default:"false"`
	Endpoint  string        `yaml:"endpoint" envconfig:"ARTIFACTS_ENDPOINT" default:"localhost:9000"`
	AccessKey string        `yaml:"access_key" envconfig:"ARTIFACTS_ACCESS_KEY"`
	SecretKey string        `yaml:"secret_key" envconfig:"ARTIFACTS_SECRET_KEY"`
	Bucket    string        `yaml:"bucket" envconfig:"ARTIFACTS_BUCKET" default:"clipgif"`
	Region    string        `yaml:"region" envconfig:"ARTIFACTS_REGION"`
	UseSSL    bool          `yaml:"use_ssl" envconfig:"ARTIFACTS_USE_SSL" default:"false"`
	URLExpiry time.Duration `yaml:"url_expiry" envconfig:"ARTIFACTS_URL_EXPIRY" default:"24h"`
}

// DownloadConfig holds remote source download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"60s"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"5s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"60s"`
	MaxFileSize   int64         `yaml:"max_file_size" envconfig:"DOWNLOAD_MAX_FILE_SIZE" default:"2147483648"` // 2GB
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Orchestrator.MaxConcurrentJobs < 1 {
		return fmt.Errorf("ORCH_MAX_CONCURRENT_JOBS must be at least 1")
	}
	if c.Orchestrator.JobTimeout <= 0 {
		return fmt.Errorf("ORCH_JOB_TIMEOUT must be positive")
	}
	switch c.Extraction.Bridge {
	case "websocket", "redis":
	default:
		return fmt.Errorf("EXTRACT_BRIDGE must be websocket or redis, got %q", c.Extraction.Bridge)
	}
	if c.Artifacts.Enabled {
		if c.Artifacts.AccessKey == "" || c.Artifacts.SecretKey == "" {
			return fmt.Errorf("ARTIFACTS_ACCESS_KEY and ARTIFACTS_SECRET_KEY are required when artifacts are enabled")
		}
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("ARTIFACTS_BUCKET is required when artifacts are enabled")
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel parses Level.
func (c *LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Level)
}
