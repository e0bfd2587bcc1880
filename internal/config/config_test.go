package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Tasks.MaxConcurrent, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, def.Loop.Interval, cfg.Loop.Interval)
	assert.Equal(t, def.Storage.DatabasePath, cfg.Storage.DatabasePath)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ws := t.TempDir()

	cfg := Default()
	cfg.Name = "homelab"
	cfg.Tasks.MaxConcurrent = 7
	cfg.Loop.Interval = 90 * time.Second
	cfg.Loop.Topics = []string{"infra", "email"}
	cfg.Logging.DebugMode = true
	cfg.Logging.Categories = map[string]bool{"loop": true, "store": false}

	require.NoError(t, Save(ws, cfg))
	require.FileExists(t, Path(ws))

	got, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoad_BackfillsZeroValues(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Dir(Path(ws)), 0755))
	require.NoError(t, os.WriteFile(Path(ws), []byte("name: sparse\ntasks:\n  max_concurrent: 0\n"), 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)

	assert.Equal(t, "sparse", cfg.Name)
	assert.Equal(t, Default().Tasks.MaxConcurrent, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, Default().Loop.HistoryLimit, cfg.Loop.HistoryLimit)
	assert.Equal(t, Default().Logging.Level, cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Dir(Path(ws)), 0755))
	require.NoError(t, os.WriteFile(Path(ws), []byte("{not yaml"), 0644))

	_, err := Load(ws)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Save(ws, Default()))

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(ws, func(cfg Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start()) // idempotent
	defer w.Stop()

	cfg := Default()
	cfg.Name = "renamed"
	require.NoError(t, Save(ws, cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, "renamed", got.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the reloaded config")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Save(ws, Default()))

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(ws, func(cfg Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	other := filepath.Join(ws, ".animus", "scratch.txt")
	require.NoError(t, os.WriteFile(other, []byte("noise"), 0644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	ws := t.TempDir()
	w, err := NewWatcher(ws, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()
}
