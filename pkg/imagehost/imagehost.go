package imagehost

import (
	"context"
	"errors"
	"io"
	"time"

	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("image host unavailable")

// Uploader stores an image and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
}

// BreakerConfig tunes the circuit breaker wrapped around an uploader
type BreakerConfig struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, Interval: time.Minute, Timeout: 30 * time.Second}
}

type breakerUploader struct {
	next Uploader
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps an uploader so repeated host failures fail fast
func WithBreaker(name string, next Uploader, cfg BreakerConfig) Uploader {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			pkglogger.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("image host circuit breaker state changed")
		},
	}
	return &breakerUploader{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *breakerUploader) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Upload(ctx, filename, r, size, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrUnavailable
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
