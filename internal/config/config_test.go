package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "DB_MIGRATE", "SQLITE_PATH", "REDIS_ADDR", "DEFAULT_BUSINESS_ID", "DUE_CACHE_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Address())
	assert.True(t, cfg.DBMigrate)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, "main-business", cfg.DefaultBusinessID)
	assert.Equal(t, 15*time.Second, cfg.DueCacheTTL())
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("SQLITE_PATH", " ./ledger.db ")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DEFAULT_BUSINESS_ID", "dhaka-01")
	t.Setenv("DUE_CACHE_TTL_SECONDS", "-4")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")
	t.Setenv("LOG_FORMAT", "Console")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, "./ledger.db", cfg.SQLitePath)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "dhaka-01", cfg.DefaultBusinessID)
	assert.Equal(t, 15, cfg.DueCacheTTLSeconds)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.Equal(t, "console", cfg.LogFormat)
}
