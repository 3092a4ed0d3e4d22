package config

import (
    "time"
)

// RateLimitConfig configures a Redis token bucket.  The API bucket sits in
// front of kiosk and admin routes; Auth() derives the tighter bucket used
// for login, register and refresh.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // bucket size
    RefillTokens   int           // tokens added each RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets expire after this
    KeyStrategy    string        // ip, user, org, ip_user, user_route, org_route or ip_user_route
    Prefix         string
    Debug          bool          // log decisions and expose X-RateLimit-Key

    AuthCapacity int           // bucket size for credential endpoints
    AuthRefill   time.Duration // one credential attempt regained per AuthRefill
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  A kiosk scans one
// card every few seconds at most, so the API default is generous while
// credential endpoints stay strict.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
        AuthCapacity:   envInt("RATE_LIMIT_AUTH_CAPACITY", 10),
        AuthRefill:     envDur("RATE_LIMIT_AUTH_REFILL", 6*time.Second),
    }
    return cfg.normalise()
}

// Auth returns the bucket for credential endpoints: keyed by client IP,
// since no caller identity exists before login.
func (c RateLimitConfig) Auth() RateLimitConfig {
    a := c
    a.Capacity = c.AuthCapacity
    a.RefillTokens = 1
    a.RefillInterval = c.AuthRefill
    a.KeyStrategy = "ip"
    a.Prefix = c.Prefix + ":auth"
    return a.normalise()
}

func (c RateLimitConfig) normalise() RateLimitConfig {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if c.AuthCapacity < 1 {
        c.AuthCapacity = 1
    }
    if c.AuthRefill <= 0 {
        c.AuthRefill = c.RefillInterval
    }
    if min := 5 * c.RefillInterval; c.TTL < min {
        c.TTL = min
    }
    return c
}
