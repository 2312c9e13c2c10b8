package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
backend: memory
fixtures:
  path: fixtures.yaml
logging:
  level: info
`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`
backend: memory
fixtures:
  path: fixtures.yaml
logging:
  level: debug
`), 0o600))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcherReloadsOnReplaceByRename(t *testing.T) {
	path := writeConfig(t, `
backend: memory
fixtures:
  path: fixtures.yaml
`)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	tmp := filepath.Join(filepath.Dir(path), ".config.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte(`
backend: memory
fixtures:
  path: fixtures.yaml
logging:
  level: warn
`), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "warn", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded after rename")
	}
}
