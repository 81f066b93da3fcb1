package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PYTHAGOREAN_API_BASE", "PYTHAGOREAN_TIMEOUT", "RATE_LIMIT_RPS", "HTTP_PORT"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	cfg := FromEnv()
	assert.Equal(t, "http://localhost:8000", cfg.APIBase)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, "8000", cfg.HTTPPort)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PYTHAGOREAN_API_BASE", "http://api.example:9000")
	t.Setenv("PYTHAGOREAN_TIMEOUT", "5")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ENVIRONMENT", "production")

	cfg := FromEnv()
	assert.Equal(t, "http://api.example:9000", cfg.APIBase)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.True(t, cfg.IsProduction())
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PYTHAGOREAN_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "many")
	cfg := FromEnv()
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
}

func TestProfileOverridesClientKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_base: http://remote:8000\nauthor: Ada\ntimeout_seconds: 30\n"), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	cfg := Config{APIBase: "http://localhost:8000", Author: "Anonymous", Timeout: time.Minute, ShareBaseURL: "http://share"}
	cfg.Apply(p)
	assert.Equal(t, "http://remote:8000", cfg.APIBase)
	assert.Equal(t, "Ada", cfg.Author)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "http://share", cfg.ShareBaseURL)
}

func TestLoadProfileErrors(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout_seconds: -1\n"), 0o600))
	_, err = LoadProfile(path)
	assert.ErrorContains(t, err, "must not be negative")
}
