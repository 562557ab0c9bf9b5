package realtime

import (
	"context"
	"encoding/json"
	"sync"

	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisChangesChannel = "chat:changes"

// Store topics. A mutation notifies its topic and every subscription on it reloads.
const (
	TopicMessages       = "messages"
	TopicAccessRequests = "access_requests"
	TopicUsers          = "users"
)

// Broker fans change notifications out to live subscriptions, locally and
// across instances through Redis pub/sub.
type Broker struct {
	mu          sync.Mutex
	topics      map[string]map[chan struct{}]struct{}
	redisClient *redis.Client
	instanceID  string
}

// NewBroker creates a Broker. A nil Redis client keeps notifications local.
func NewBroker(redisClient *redis.Client) *Broker {
	return &Broker{
		topics:      make(map[string]map[chan struct{}]struct{}),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
	}
}

type changeMessage struct {
	Origin string `json:"origin"`
	Topic  string `json:"topic"`
}

// Notify marks every subscription on topic dirty and tells other instances
func (b *Broker) Notify(ctx context.Context, topic string) {
	b.markDirty(topic)

	if b.redisClient == nil {
		return
	}
	data, err := json.Marshal(&changeMessage{Origin: b.instanceID, Topic: topic})
	if err != nil {
		return
	}
	if err := b.redisClient.Publish(ctx, redisChangesChannel, data).Err(); err != nil {
		pkglogger.Warn("realtime: publish %s failed: %v", topic, err)
	}
}

// Run listens for changes made on other instances until ctx is done
func (b *Broker) Run(ctx context.Context) {
	if b.redisClient == nil {
		return
	}
	pubsub := b.redisClient.Subscribe(ctx, redisChangesChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cm changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				continue
			}
			// Local refresh only; the origin already refreshed itself
			if cm.Origin != b.instanceID {
				b.markDirty(cm.Topic)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Subscribers returns the number of live subscriptions on topic
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Broker) register(topic string) chan struct{} {
	dirty := make(chan struct{}, 1)
	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan struct{}]struct{})
	}
	b.topics[topic][dirty] = struct{}{}
	b.mu.Unlock()
	return dirty
}

func (b *Broker) unregister(topic string, dirty chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.topics[topic]; ok {
		delete(subs, dirty)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

func (b *Broker) markDirty(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for dirty := range b.topics[topic] {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
}
