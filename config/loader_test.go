package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FallsBackToDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoad_EnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("storage:\n  type: disk\n  path: /data\n"), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "disk", cfg.Storage.Type)
}

func TestLoad_EnvironmentOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging:\n  level: info\n"), 0o644))
	t.Setenv("KERIMESH_LOG_LEVEL", "debug")

	cfg, err := Load(LoaderOptions{ConfigDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ValidationFailureRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  type: bogus\n"), 0o644))

	_, err := Load(LoaderOptions{ConfigDir: dir})
	assert.Error(t, err)
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  type: bogus\n"), 0o644))

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir})
	})
}
