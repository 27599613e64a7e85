package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, Config{
		Port:            8080,
		Host:            "0.0.0.0",
		MaxBodyBytes:    DefaultMaxBodyBytes,
		LogLevel:        "info",
		LogFormat:       LogFormatText,
		ShutdownTimeout: 5 * time.Second,
	}, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":                    "9090",
		"AETHER_HOST":             "127.0.0.1",
		"AETHER_MAX_BODY_BYTES":   "1024",
		"AETHER_LOG_LEVEL":        "debug",
		"AETHER_LOG_FORMAT":       "json",
		"AETHER_SNAPSHOT_PATH":    "/tmp/state.db",
		"AETHER_SHUTDOWN_TIMEOUT": "250ms",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	assert.Equal(t, "/tmp/state.db", cfg.SnapshotPath)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"PORT": "not-an-int"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadFromProcessEnv(t *testing.T) {
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestValidate(t *testing.T) {
	base, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative port", func(c *Config) { c.Port = -1 }, "out of range"},
		{"huge port", func(c *Config) { c.Port = 70000 }, "out of range"},
		{"zero body", func(c *Config) { c.MaxBodyBytes = 0 }, "max body bytes"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
		{"zero timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: LogFormatJSON}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "batch_seq", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"batch_seq":7`)
}
