package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
analytics:
  base_url: http://analytics.local
  timeout: 5s
views:
  idle_timeout: 10m
charts:
  theme: dark
`), 0o644))

	t.Setenv("DASHBOARD_API_KEY", "from-env")
	t.Setenv("DASHBOARD_LISTEN", ":9100")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, "http://analytics.local", cfg.Analytics.BaseURL)
	assert.Equal(t, "from-env", cfg.Analytics.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Analytics.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Views.IdleTimeout)
	assert.Equal(t, 3*time.Second, cfg.Views.PageWait)
	assert.Equal(t, "dark", cfg.Charts.Theme)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DASHBOARD_DEMO=true\nDASHBOARD_JWT_SECRET=s3cret\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("DASHBOARD_DEMO")
		os.Unsetenv("DASHBOARD_JWT_SECRET")
	})

	cfg, err := Load(filepath.Join(dir, "missing.yaml"), envFile)
	require.NoError(t, err)
	assert.True(t, cfg.Analytics.Demo)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	env := map[string]string{
		"DASHBOARD_IDLE_TIMEOUT": "soon",
		"DASHBOARD_DEMO":         "maybe",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DASHBOARD_IDLE_TIMEOUT")
	assert.Contains(t, err.Error(), "DASHBOARD_DEMO")
}

func TestValidateRequiresAnalyticsSource(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())
	cfg.Analytics.Demo = true
	require.NoError(t, cfg.Validate())
}
