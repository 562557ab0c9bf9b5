package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/damoang/angple-chat/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SendRateLimitPrefix is the bucket prefix of the message send quota
const SendRateLimitPrefix = "chat:ratelimit:send:"

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	KeyPrefix         string
	Message           string
	// Key picks the bucket for a request
	Key func(c *gin.Context) string
}

// DefaultRateLimitConfig limits by client IP
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		KeyPrefix:         "chat:ratelimit:ip:",
		Message:           "Too many requests. Please try again shortly.",
		Key:               func(c *gin.Context) string { return c.ClientIP() },
	}
}

// RateLimit limits requests per minute, in Redis when a client is given and per
// process otherwise.
func RateLimit(redisClient *redis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	return RateLimitWith(ratelimit.New(redisClient, cfg.KeyPrefix, cfg.RequestsPerMinute, time.Minute), cfg)
}

// RateLimitWith applies an existing limiter. A nil limiter lets every request through,
// and so does a limiter error.
func RateLimitWith(limiter ratelimit.Limiter, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Key == nil {
		cfg.Key = func(c *gin.Context) string { return c.ClientIP() }
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := cfg.Key(c)
		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limit check failed for %s: %v", key, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			now := time.Now()
			if !res.ResetAt.IsZero() {
				c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter(now).Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"code": "RATE_LIMITED", "message": cfg.Message},
			})
			return
		}

		c.Next()
	}
}

// RateLimitPerUser applies the send quota keyed by the authenticated user, falling
// back to the client IP. The same limiter guards sends over the live session.
func RateLimitPerUser(limiter ratelimit.Limiter) gin.HandlerFunc {
	return RateLimitWith(limiter, RateLimitConfig{
		Message: "You are sending messages too quickly. Please slow down.",
		Key: func(c *gin.Context) string {
			if userID := GetUserID(c); userID != "" {
				return userID
			}
			return "ip:" + c.ClientIP()
		},
	})
}
