package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: staging
storage:
  type: disk
  path: /tmp/kerimesh
challenge:
  ttl: 2m
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "disk", cfg.Storage.Type)
	assert.Equal(t, "/tmp/kerimesh", cfg.Storage.Path)
	// Fields the file leaves unset are filled in by setDefaults.
	assert.Equal(t, "Ed25519", cfg.Identity.DefaultKeyType)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Environment = "production"

	require.NoError(t, SaveToFile(cfg, path))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Environment, loaded.Environment)
	assert.Equal(t, cfg.Storage.Type, loaded.Storage.Type)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 0.5, cfg.Group.DefaultQuorumThreshold)
	assert.Equal(t, 2, cfg.Group.SyncRetries)
	assert.NotZero(t, cfg.Challenge.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}
