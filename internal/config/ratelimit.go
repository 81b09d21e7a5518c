package config

import "time"

// RateLimitConfig tunes the per-caller token bucket in front of the booking
// endpoints.  Join storms at publish time are the load pattern this guards
// against.
type RateLimitConfig struct {
	Enabled      bool
	Capacity     int           // bucket size
	RefillEvery  time.Duration // one token per interval
	TTL          time.Duration // idle key lifetime in Redis
	Prefix       string        // key namespace
	LocalRPS     float64       // in-process fallback rate when Redis is down
	LocalBurst   int
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables with sane defaults.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Capacity:    envInt("RATE_LIMIT_CAPACITY", 30),
		RefillEvery: envDur("RATE_LIMIT_REFILL_EVERY", time.Second),
		TTL:         envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:      getenv("RATE_LIMIT_PREFIX", "rl"),
		LocalRPS:    1,
		LocalBurst:  envInt("RATE_LIMIT_CAPACITY", 30),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.LocalBurst < 1 {
		cfg.LocalBurst = 1
	}
	if min := 5 * cfg.RefillEvery; cfg.TTL < min {
		cfg.TTL = min
	}
	cfg.LocalRPS = float64(time.Second) / float64(cfg.RefillEvery)
	return cfg
}
