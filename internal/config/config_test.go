package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("ECHO_CODE", "")
	t.Setenv("DEMO_MODE", "")

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.EchoCode)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, "memory", cfg.SessionBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_PER_MIN", "7")
	t.Setenv("DEMO_MODE", "false")
	t.Setenv("ECHO_CODE", "")

	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 7, cfg.RateLimitPerMin)
	assert.False(t, cfg.DemoMode)
	assert.False(t, cfg.EchoCode, "code echo is off in production unless asked for")
}

func TestProductionDefaultsToRealSchool(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEMO_MODE", "")
	t.Setenv("ECHO_CODE", "")

	cfg := Load()
	assert.False(t, cfg.DemoMode)
	assert.False(t, cfg.EchoCode)

	t.Setenv("DEMO_MODE", "true")
	assert.True(t, Load().DemoMode)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("DEMO_MODE", "maybe")

	assert.Equal(t, time.Second, durationEnv("REQUEST_TIMEOUT", time.Second))
	assert.Equal(t, 5, intEnv("RATE_LIMIT_PER_MIN", 5))
	assert.True(t, boolEnv("DEMO_MODE", true))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DIARY_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DIARY_TEST_KEY") })

	loadDotEnv(path)
	assert.Equal(t, "from-file", os.Getenv("DIARY_TEST_KEY"))

	// missing files are ignored
	loadDotEnv(filepath.Join(dir, "missing.env"))
}
