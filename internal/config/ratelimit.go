package config

import (
    "strings"
    "time"
)

// RateLimitConfig sizes the global token bucket.  The defaults allow a
// burst of 100 requests per client and refill one token every 9 seconds,
// which is 100 requests per 15 minutes at steady state.
type RateLimitConfig struct {
    Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
    Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"100"`
    RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
    RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"9s"`
    TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"15m"`    // idle buckets are dropped after this
    KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip"` // ip | user | ip_route | anything else = ip+user+route
    Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
    Debug          bool          `env:"RATE_LIMIT_DEBUG"`
}

// normalize clamps nonsensical values instead of failing startup.  An idle
// bucket must outlive a few refills or clients would get a fresh burst.
func (c *RateLimitConfig) normalize() {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if floor := 5 * c.RefillInterval; c.TTL < floor {
        c.TTL = floor
    }
}

// KeysByUser reports whether bucket keys include the session user.  Such
// keys are only meaningful behind JWTAuth.
func (c RateLimitConfig) KeysByUser() bool {
    switch strings.ToLower(c.KeyStrategy) {
    case "ip", "ip_route":
        return false
    }
    return true
}

// PerSecond is the steady refill rate, used by the in-memory limiter.
func (c RateLimitConfig) PerSecond() float64 {
    return float64(c.RefillTokens) / c.RefillInterval.Seconds()
}
