package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HTTP.Listen, cfg.HTTP.Listen)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live777.yaml")
	yamlContent := "http:\n  listen: \":9999\"\n  cors: false\nlogging:\n  level: debug\n  format: json\ncascade:\n  connect_timeout: 500ms\n  total_timeout: 1s\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Listen)
	assert.False(t, cfg.HTTP.CORS)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsEmptyListen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Listen = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedCascadeTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cascade.ConnectTimeout = 2 * cfg.Cascade.TotalTimeout
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVE777_HTTP_LISTEN", ":1234")
	t.Setenv("LIVE777_AUTH_TOKENS", "a,b,c")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, ":1234", cfg.HTTP.Listen)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.Tokens)
}
