package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter is a per-process token bucket per key: limit tokens, refilled
// evenly over window.
type localLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     int
	every     rate.Limit
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocal creates an in-memory limiter. Counts are not shared between instances.
func NewLocal(limit int, window time.Duration) Limiter {
	return &localLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		every:    rate.Every(window / time.Duration(limit)),
		window:   window,
		now:      time.Now,
	}
}

func (l *localLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	res := Result{Limit: l.limit}
	if v.limiter.AllowN(now, 1) {
		res.Allowed = true
		res.Remaining = int(v.limiter.TokensAt(now))
		return res, nil
	}

	r := v.limiter.ReserveN(now, 1)
	res.ResetAt = now.Add(r.DelayFrom(now))
	r.CancelAt(now)
	return res, nil
}

// sweep forgets keys idle for a full window, at most once per window
func (l *localLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.visitors, k)
		}
	}
}
