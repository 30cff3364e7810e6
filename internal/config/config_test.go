package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: owner-1\nweek_start: friday\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "owner-1", cfg.Owner)
	assert.Equal(t, "monday", cfg.WeekStart, "unknown week_start falls back")
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BackendURL, "derived from listen")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Owner = "owner-42"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "owner-42", got.Owner)
	require.NotNil(t, got.BasicAuth)
	assert.Equal(t, "u", got.BasicAuth.Username)
}
