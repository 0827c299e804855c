package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packers: []\n"), 0o644))

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, zap.NewNop(), func(c *Config) { got <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	doc := "packers:\n  - id: \"101\"\n    name: Iryna\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	select {
	case cfg := <-got:
		require.Len(t, cfg.Packers, 1)
		assert.Equal(t, "Iryna", cfg.Packers[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	w.Stop()
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packers: []\n"), 0o644))

	got := make(chan *Config, 1)
	w, err := NewWatcher(path, zap.NewNop(), func(c *Config) { got <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case <-got:
		t.Fatal("unexpected reload")
	case <-time.After(600 * time.Millisecond):
	}

	w.Stop()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(filepath.Join(t.TempDir(), "c.yaml"), zap.NewNop(), func(*Config) {})
	require.NoError(t, err)
	w.Stop()
}
