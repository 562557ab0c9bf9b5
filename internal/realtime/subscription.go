package realtime

import (
	"context"
	"fmt"

	"github.com/damoang/angple-chat/internal/common"
)

// Snapshot is one full result set. Err is set when the load failed.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Loader runs the query behind a subscription
type Loader[T any] func(ctx context.Context) ([]T, error)

// Subscription delivers the full result set of a query on every change to its topic.
// Only the newest snapshot is kept for a slow reader.
type Subscription[T any] struct {
	C <-chan Snapshot[T]

	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts a subscription that delivers an initial snapshot and then a fresh
// one after every Notify(topic). It ends when ctx is done or Close is called.
func Subscribe[T any](ctx context.Context, b *Broker, topic string, load Loader[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot[T], 1)
	sub := &Subscription[T]{C: out, cancel: cancel, done: make(chan struct{})}

	dirty := b.register(topic)
	go func() {
		defer close(sub.done)
		defer close(out)
		defer b.unregister(topic, dirty)

		for {
			items, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			snap := Snapshot[T]{Items: items}
			if err != nil {
				snap = Snapshot[T]{Err: fmt.Errorf("%w: %s: %v", common.ErrSubscription, topic, err)}
			}
			deliverLatest(out, snap)

			select {
			case <-dirty:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub
}

// Close tears the subscription down and waits for its goroutine to exit
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// deliverLatest replaces an unread snapshot with the newer one. The subscription
// goroutine is the only sender, so the second send cannot block.
func deliverLatest[T any](out chan Snapshot[T], snap Snapshot[T]) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}
