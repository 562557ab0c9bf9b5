package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted-set member per admitted call
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 1)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

type redisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis creates a sliding-window limiter stored in Redis under prefix+key
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	return &redisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UnixMilli()
	out, err := slidingWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		l.limit, l.window.Milliseconds(), now,
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}

	res := Result{Allowed: out[0] == 1, Limit: l.limit, Remaining: int(out[1])}
	if !res.Allowed && out[2] > 0 {
		res.ResetAt = time.UnixMilli(out[2])
	}
	return res, nil
}
