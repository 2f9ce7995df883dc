package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://admin.example.com"]
  access_token: "stub-token"

api:
  base_url: "https://crm.example.com"
  tenant_id: 12
  timeout_seconds: 10

cache:
  redis_url: "redis://localhost:6379/2"
  ttl_seconds: 60

log:
  level: debug
  redact_pii: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "stub-token", cfg.Server.AccessToken)

	assert.Equal(t, "https://crm.example.com", cfg.API.BaseURL)
	assert.Equal(t, int64(12), cfg.API.TenantID)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())
	assert.Equal(t, 3, cfg.API.Retries())

	assert.Equal(t, "redis://localhost:6379/2", cfg.Cache.RedisURL)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.ShouldRedactPII())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout())
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, int64(1), cfg.API.TenantID)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.Log.ShouldRedactPII())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEGMENTS_API_URL", "https://api.example.com")
	t.Setenv("SEGMENTS_TENANT_ID", "77")
	t.Setenv("API_ACCESS_TOKEN", "access")
	t.Setenv("API_REFRESH_TOKEN", "refresh")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("DATABASE_URL", "postgres://localhost/segments?sslmode=disable")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, int64(77), cfg.API.TenantID)
	assert.Equal(t, "access", cfg.API.AccessToken)
	assert.Equal(t, "refresh", cfg.API.RefreshToken)
	assert.Equal(t, "redis://cache:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, "postgres://localhost/segments?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFromEnvRejectsBadTenant(t *testing.T) {
	t.Setenv("SEGMENTS_TENANT_ID", "acme")
	_, err := LoadFromEnv("")
	assert.Error(t, err)
}

func TestServerGetHostOverride(t *testing.T) {
	t.Setenv("SERVER_HOST", "127.0.0.1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
}

func TestMaxRetriesZeroIsKept(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("api:\n  max_retries: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.API.MaxRetries)
	assert.Equal(t, 0, cfg.API.Retries())

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, cfg.API.Retries())
}

func TestMaxRetriesFromEnv(t *testing.T) {
	t.Setenv("SEGMENTS_API_MAX_RETRIES", "0")
	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.API.Retries())

	t.Setenv("SEGMENTS_API_MAX_RETRIES", "-2")
	_, err = LoadFromEnv("")
	assert.Error(t, err)
}
