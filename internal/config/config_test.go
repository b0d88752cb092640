package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, RouterLog, cfg.Router)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 3, cfg.PersistAttempts)
	assert.Equal(t, ".sagaflow", cfg.Dir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SAGAFLOW_STORE", "redis")
	t.Setenv("SAGAFLOW_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SAGAFLOW_PII_KEYS", "email,card_.*")
	t.Setenv("SAGAFLOW_LOCK_TTL", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, []string{"email", "card_.*"}, cfg.PIIKeys)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("parse error", func(t *testing.T) {
		t.Setenv("SAGAFLOW_PERSIST_ATTEMPTS", "many")
		_, err := Load()
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "parse env:"))
	})
	t.Run("redis without url", func(t *testing.T) {
		t.Setenv("SAGAFLOW_ROUTER", "redis")
		_, err := Load()
		assert.ErrorContains(t, err, "SAGAFLOW_REDIS_URL")
	})
	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("SAGAFLOW_STORE", "tape")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown store")
	})
	t.Run("short key", func(t *testing.T) {
		t.Setenv("SAGAFLOW_ENCRYPTION_KEY", "abcd")
		_, err := Load()
		assert.ErrorContains(t, err, "32 bytes")
	})
}

func TestKeys(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	cfg := Config{EncryptionKey: hexKey, EncryptionFallbackKeys: []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}}
	active, fallback, err := cfg.Keys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Len(t, fallback[0], 32)

	active, fallback, err = Config{}.Keys()
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Nil(t, fallback)
}
