package config

import "time"

// AllocationConfig tunes the seat allocation engine.
type AllocationConfig struct {
	ReactivationWindow  time.Duration // REACTIVATION_WINDOW_DAYS
	LowSlotsThreshold   int           // LOW_SLOTS_THRESHOLD
	TransitionLockTTL   time.Duration // TRANSITION_LOCK_TTL
	LockPrefix          string        // TRANSITION_LOCK_PREFIX
	StandaloneTokenDays int           // STANDALONE_TOKEN_DAYS, default validity of granted tokens
}

func LoadAllocationConfig() AllocationConfig {
	cfg := AllocationConfig{
		ReactivationWindow:  time.Duration(envInt("REACTIVATION_WINDOW_DAYS", 30)) * 24 * time.Hour,
		LowSlotsThreshold:   envInt("LOW_SLOTS_THRESHOLD", 2),
		TransitionLockTTL:   envDur("TRANSITION_LOCK_TTL", 15*time.Second),
		LockPrefix:          envStr("TRANSITION_LOCK_PREFIX", "alloc:lock"),
		StandaloneTokenDays: envInt("STANDALONE_TOKEN_DAYS", 30),
	}
	if cfg.ReactivationWindow <= 0 {
		cfg.ReactivationWindow = 30 * 24 * time.Hour
	}
	if cfg.LowSlotsThreshold < 0 {
		cfg.LowSlotsThreshold = 0
	}
	if cfg.TransitionLockTTL <= 0 {
		cfg.TransitionLockTTL = 15 * time.Second
	}
	if cfg.StandaloneTokenDays < 1 {
		cfg.StandaloneTokenDays = 30
	}
	return cfg
}
