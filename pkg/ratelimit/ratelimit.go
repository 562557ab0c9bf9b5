package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one Allow call
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the next call will be admitted; zero when Allowed
	ResetAt time.Time
}

// RetryAfter returns how long a refused caller should wait, at least one second
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Limiter admits at most a fixed number of calls per key and window
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// New returns a Redis limiter shared by every instance, or a per-process one
// when redisClient is nil. A non-positive limit returns nil, which callers treat
// as unlimited.
func New(redisClient *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	if limit <= 0 {
		return nil
	}
	if redisClient == nil {
		return NewLocal(limit, window)
	}
	return NewRedis(redisClient, prefix, limit, window)
}
