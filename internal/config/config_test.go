package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAllocationConfigDefaults(t *testing.T) {
	cfg := LoadAllocationConfig()
	assert.Equal(t, 30*24*time.Hour, cfg.ReactivationWindow)
	assert.Equal(t, 2, cfg.LowSlotsThreshold)
	assert.Equal(t, 15*time.Second, cfg.TransitionLockTTL)
	assert.Equal(t, "alloc:lock", cfg.LockPrefix)
	assert.Equal(t, 30, cfg.StandaloneTokenDays)
}

func TestLoadAllocationConfigOverrides(t *testing.T) {
	t.Setenv("REACTIVATION_WINDOW_DAYS", "7")
	t.Setenv("LOW_SLOTS_THRESHOLD", "5")
	t.Setenv("TRANSITION_LOCK_TTL", "3s")
	t.Setenv("STANDALONE_TOKEN_DAYS", "0")

	cfg := LoadAllocationConfig()
	assert.Equal(t, 7*24*time.Hour, cfg.ReactivationWindow)
	assert.Equal(t, 5, cfg.LowSlotsThreshold)
	assert.Equal(t, 3*time.Second, cfg.TransitionLockTTL)
	assert.Equal(t, 30, cfg.StandaloneTokenDays, "non-positive validity falls back to the default")
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	cfg := LoadRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, "trainer_route", cfg.KeyStrategy)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")
	t.Setenv("CACHE_ENABLED", "false")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}
