package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, []string{"events", "system"}, cfg.Platform.Channels)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 30*time.Second, cfg.Degradation.GraceWindow)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Empty(t, cfg.Auth.OperatorKeyHash)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("PLATFORM_CHANNELS", "events,system,audit")
	t.Setenv("RETRY_MAX_ATTEMPTS", "6")
	t.Setenv("RECONNECT_BASE_DELAY", "250ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, []string{"events", "system", "audit"}, cfg.Platform.Channels)
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	body := `
platform:
  channels: [events]
retry:
  max_attempts: 4
  base_delay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"events"}, cfg.Platform.Channels)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)

	// Untouched sections keep their environment defaults.
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: ["), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no channels", func(c *Config) { c.Platform.Channels = nil }},
		{"empty base url", func(c *Config) { c.Platform.BaseURL = "" }},
		{"empty stream url", func(c *Config) { c.Platform.StreamURL = "" }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"negative retry delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }},
		{"retry cap below base", func(c *Config) { c.Retry.MaxDelay = c.Retry.BaseDelay / 2 }},
		{"zero reconnect attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }},
		{"reconnect cap below base", func(c *Config) { c.Reconnect.MaxDelay = c.Reconnect.BaseDelay / 2 }},
		{"zero poll interval", func(c *Config) { c.Polling.Interval = 0 }},
		{"negative grace window", func(c *Config) { c.Degradation.GraceWindow = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "not-a-number")

	cfg := LoadOrDefault()
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}
