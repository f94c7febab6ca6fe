package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSubPackageDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10, cfg.Reconciler.MaxConcurrent)
	require.Equal(t, 30*time.Second, cfg.Heartbeat.CheckInterval)
	require.Equal(t, "memory", cfg.Persistence.Driver)
	require.Equal(t, "inproc", cfg.EventBus.Driver)
}

func TestLoadConfigFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oya.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  mailbox_size: 512
persistence:
  driver: postgres
  dsn: "${TEST_DSN}"
`), 0o644))

	t.Setenv("TEST_DSN", "postgres://example/db")

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 512, cfg.Scheduler.MailboxSize)
	require.Equal(t, "postgres", cfg.Persistence.Driver)
	require.Equal(t, "postgres://example/db", cfg.Persistence.DSN)

	// Fields untouched by the file keep their defaults.
	require.Equal(t, 10, cfg.Reconciler.MaxConcurrent)
}

func TestLoadConfigFromFileMissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oya.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  mailbox_size: 10\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			results <- cfg
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  mailbox_size: 99\n"), 0o644))

	select {
	case cfg := <-results:
		require.Equal(t, 99, cfg.Scheduler.MailboxSize)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
