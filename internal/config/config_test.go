package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(100), cfg.Prefilter.MinViews)
	assert.Equal(t, "ollama", cfg.Confirm.Provider)
	assert.Equal(t, 50, cfg.Confirm.BatchSize)
	assert.Equal(t, 3, cfg.Confirm.Workers)
	assert.Equal(t, 120, cfg.Confirm.TimeoutSecs)
	assert.Equal(t, 3, cfg.Confirm.MaxAttempts)
	assert.Equal(t, "manual", cfg.Confirm.RequeuePolicy)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, "llama3.2:1b", cfg.Ollama.Model)
	assert.InDelta(t, 0.1, cfg.Ollama.Temperature, 0.001)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 100000, cfg.Ingest.ChunkSize)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: file:curated.db
log:
  level: debug
  format: console
confirm:
  batch_size: 25
  workers: 2
  requeue_policy: auto
prefilter:
  min_views: 50
ollama:
  model: llama3.1:8b
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:curated.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 25, cfg.Confirm.BatchSize)
	assert.Equal(t, 2, cfg.Confirm.Workers)
	assert.Equal(t, "auto", cfg.Confirm.RequeuePolicy)
	assert.Equal(t, int64(50), cfg.Prefilter.MinViews)
	assert.Equal(t, "llama3.1:8b", cfg.Ollama.Model)
	// Untouched defaults survive partial files.
	assert.Equal(t, 3, cfg.Confirm.MaxAttempts)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PAGEVIEW_STORE_DRIVER", "sqlite")
	t.Setenv("PAGEVIEW_CONFIRM_BATCH_SIZE", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Confirm.BatchSize)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
