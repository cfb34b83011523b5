package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Quota.FreeTestLimit)
	assert.Equal(t, 5, cfg.Quota.FreeUploadLimit)
	assert.Equal(t, "mock", cfg.Generator.Provider)
	assert.Equal(t, 60*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, "UTC", cfg.Stats.Timezone)
}

func TestLoad_PrefersLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "quota:\n  free_test_limit: 2\n")
	writeConfig(t, dir, "config.local.yaml", "quota:\n  free_test_limit: 7\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Quota.FreeTestLimit)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
