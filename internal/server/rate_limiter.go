package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter is a per-connection token bucket: Burst frames may arrive at
// once, and a full bucket refills over RefillInterval.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	perSecond := rate.Limit(float64(burst) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, burst)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
