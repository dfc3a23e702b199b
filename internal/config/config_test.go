package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/snapgram")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.DataStore)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.LoginLockDuration)
	assert.Equal(t, 7*24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.PasswordResetTTL)
	assert.Equal(t, 10, cfg.MaxActiveSessions)
	assert.False(t, cfg.RefreshTokenRotate)
	assert.Equal(t, 5, cfg.AuthRateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.AuthRateLimitWindow)
	assert.True(t, cfg.RevealResetTokens)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("LOGIN_MAX_ATTEMPTS", "lots")
	t.Setenv("LOGIN_LOCK_MINUTES", "-3")
	t.Setenv("MAX_ACTIVE_SESSIONS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.LoginLockDuration)
	assert.Equal(t, 0, cfg.MaxActiveSessions)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("JWT_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATA_STORE", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("JWT_REFRESH_SECRET", "other")
	t.Setenv("DATA_STORE", "memory")
	_, err = Load()
	assert.NoError(t, err)

	t.Setenv("DATA_STORE", "mongo")
	_, err = Load()
	assert.ErrorContains(t, err, "unsupported DATA_STORE")
}

func TestLoad_YAMLFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt_secret: from-file
JWT_REFRESH_SECRET: refresh-from-file
DATA_STORE: memory
LOGIN_MAX_ATTEMPTS: 7
ALLOWED_ORIGINS:
  - https://snapgram.example
  - https://admin.snapgram.example
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("DATA_STORE", "")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, StoreMemory, cfg.DataStore)
	assert.Equal(t, 9, cfg.LoginMaxAttempts)
	assert.Equal(t, []string{"https://snapgram.example", "https://admin.snapgram.example"}, cfg.AllowedOrigins)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_ProductionHidesResetTokens(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.RevealResetTokens)
}
