package cli

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aether/internal/snapshot"
)

// restoreDefaultLogger undoes the slog.SetDefault done by serve.
func restoreDefaultLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestServeConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "AETHER_HOST", "AETHER_LOG_LEVEL", "AETHER_SNAPSHOT_PATH"} {
		t.Setenv(key, "")
	}

	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := serveConfig(opts, cmd)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.SnapshotPath)
}

func TestServeConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AETHER_HOST", "10.0.0.1")
	t.Setenv("AETHER_LOG_LEVEL", "warn")

	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9191", "--snapshot", "/tmp/x.db", "--log-format", "json"}))

	cfg, err := serveConfig(opts, cmd)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port, "flag wins")
	assert.Equal(t, "10.0.0.1", cfg.Host, "unset flag keeps env")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/tmp/x.db", cfg.SnapshotPath)
}

func TestServeConfigVerboseForcesDebug(t *testing.T) {
	t.Setenv("AETHER_LOG_LEVEL", "error")

	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text", Verbose: true}}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := serveConfig(opts, cmd)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestServeInvalidConfig(t *testing.T) {
	restoreDefaultLogger(t)

	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestServeShutdownExportsSnapshot(t *testing.T) {
	restoreDefaultLogger(t)
	dbPath := filepath.Join(t.TempDir(), "state.db")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logs := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(logs)
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", "0", "--snapshot", dbPath})

	require.NoError(t, cmd.ExecuteContext(ctx), logs.String())
	assert.Contains(t, logs.String(), "snapshot exported")

	db, err := snapshot.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	snap, meta, err := db.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Bindings, "the live store starts empty")
	assert.Len(t, meta.Digest, 64)
}
