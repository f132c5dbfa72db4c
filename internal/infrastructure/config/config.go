package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Platform    PlatformConfig    `yaml:"platform"`
	Retry       RetryConfig       `yaml:"retry"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Polling     PollingConfig     `yaml:"polling"`
	Degradation DegradationConfig `yaml:"degradation"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LogConfig         `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// PlatformConfig holds the upstream platform endpoints.
type PlatformConfig struct {
	BaseURL           string        `envconfig:"PLATFORM_URL" default:"http://localhost:9000/api" yaml:"base_url"`
	StreamURL         string        `envconfig:"PLATFORM_STREAM_URL" default:"ws://localhost:9000/api/stream" yaml:"stream_url"`
	APIKey            string        `envconfig:"PLATFORM_API_KEY" default:"" yaml:"api_key"`
	Channels          []string      `envconfig:"PLATFORM_CHANNELS" default:"events,system" yaml:"channels"`
	Timeout           time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"15s" yaml:"timeout"`
	RequestsPerSecond float64       `envconfig:"PLATFORM_RPS" default:"20" yaml:"requests_per_second"`
}

// RetryConfig tunes the rate limit retry scheduler.
type RetryConfig struct {
	MaxAttempts  int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3" yaml:"max_attempts"`
	BaseDelay    time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s" yaml:"base_delay"`
	MaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s" yaml:"max_delay"`
	TickInterval time.Duration `envconfig:"RETRY_TICK" default:"1s" yaml:"tick_interval"`
}

// ReconnectConfig tunes per-channel reconnection.
type ReconnectConfig struct {
	MaxAttempts int           `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5" yaml:"max_attempts"`
	BaseDelay   time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"1s" yaml:"base_delay"`
	MaxDelay    time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"30s" yaml:"max_delay"`
}

// PollingConfig tunes the degraded-mode events fallback.
type PollingConfig struct {
	Interval     time.Duration `envconfig:"POLL_INTERVAL" default:"10s" yaml:"interval"`
	PauseOnError bool          `envconfig:"POLL_PAUSE_ON_ERROR" default:"false" yaml:"pause_on_error"`
	PageSize     int           `envconfig:"POLL_PAGE_SIZE" default:"50" yaml:"page_size"`
}

// DegradationConfig tunes the degraded mode aggregator.
type DegradationConfig struct {
	GraceWindow    time.Duration `envconfig:"DEGRADATION_GRACE" default:"30s" yaml:"grace_window"`
	HealthInterval time.Duration `envconfig:"HEALTH_PROBE_INTERVAL" default:"15s" yaml:"health_interval"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// AuthConfig guards mutating operator endpoints.
type AuthConfig struct {
	// OperatorKeyHash is a bcrypt hash of the operator key. Empty
	// disables authentication.
	OperatorKeyHash string `envconfig:"OPERATOR_KEY_HASH" default:"" yaml:"operator_key_hash"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads environment configuration, then overlays the YAML
// file at path on top of it. YAML only overrides keys it names.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Platform: PlatformConfig{
			BaseURL:           "http://localhost:9000/api",
			StreamURL:         "ws://localhost:9000/api/stream",
			Channels:          []string{"events", "system"},
			Timeout:           15 * time.Second,
			RequestsPerSecond: 20,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    time.Second,
			MaxDelay:     30 * time.Second,
			TickInterval: time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Polling: PollingConfig{
			Interval: 10 * time.Second,
			PageSize: 50,
		},
		Degradation: DegradationConfig{
			GraceWindow:    30 * time.Second,
			HealthInterval: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate rejects configurations the console cannot run with.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("config: platform base URL required")
	}
	if c.Platform.StreamURL == "" {
		return fmt.Errorf("config: platform stream URL required")
	}
	if len(c.Platform.Channels) == 0 {
		return fmt.Errorf("config: at least one channel required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry max attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("config: retry base delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("config: retry max delay must not be below base delay")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("config: reconnect max attempts must be at least 1")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("config: reconnect base delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("config: reconnect max delay must not be below base delay")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	if c.Degradation.GraceWindow < 0 {
		return fmt.Errorf("config: degradation grace window must not be negative")
	}
	return nil
}
