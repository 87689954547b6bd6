package rateLimit

import (
	"context"
	"time"
)

// Counter counts hits per fixed window.
type Counter interface {
	IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error)
}

type RateLimiter struct {
	redis Counter
}

func NewRateLimiter(redis Counter) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow reports whether another hit for key fits in rate per period. It
// fails open: when the counter is unreachable the request is let through and
// the error returned for logging.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	n, err := rl.redis.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		return true, err
	}
	return n <= int64(rate), nil
}
