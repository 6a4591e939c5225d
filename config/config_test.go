package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileWithDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
database:
  url: postgres://escrow@localhost/escrow
auth:
  jwt_secret: s3cret
  access_ttl: 10m
storage:
  endpoint: localhost:9000
  bucket: docs
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://escrow@localhost/escrow", cfg.Database.URL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "docs", cfg.Storage.Bucket)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.True(t, cfg.StorageEnabled())
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@localhost/escrow")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("HTTP_PORT", "8181")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@localhost/escrow", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.True(t, cfg.Storage.UseSSL)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.False(t, cfg.StorageEnabled())
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url")

	t.Setenv("DATABASE_URL", "postgres://x@localhost/y")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@localhost/y")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RefreshShorterThanAccess(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Database.URL = "postgres://x@localhost/y"
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.RefreshTTL = time.Minute
	cfg.Auth.AccessTTL = time.Hour

	require.Error(t, cfg.Validate())
}
