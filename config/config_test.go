package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("STORAGE_TYPE", "")
	t.Setenv("ACTIVITY_BACKEND", "")
	t.Setenv("LOCK_DURATION", "")
	t.Setenv("PRESENCE_STALE_AFTER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageType)
	assert.Equal(t, ActivityPostgres, cfg.ActivityBackend)
	assert.Equal(t, 30*time.Second, cfg.LockDuration)
	assert.Equal(t, time.Minute, cfg.PresenceStaleAfter)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.NeedsPostgres())
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("LOCK_DURATION", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "LOCK_DURATION")
}

func TestValidateBackends(t *testing.T) {
	cfg := &Config{
		JWTSecret:       "s",
		StorageType:     StorageMemory,
		ActivityBackend: ActivityPostgres,
		LockDuration:    time.Second,
	}
	assert.Error(t, cfg.Validate())

	cfg.ActivityBackend = ActivityMongo
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.NeedsPostgres())

	cfg.StorageType = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	c := DBConfig{User: "u", Password: "p", Host: "h", Port: "5432", Name: "deck", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/deck?sslmode=disable", c.DSN())
}
