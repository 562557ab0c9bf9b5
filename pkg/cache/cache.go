package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL 상수 정의
const (
	TTLForever  = 0                  // selection and mute preferences never expire
	TTLMessages = 24 * time.Hour     // last-known message list per conversation
	TTLDefault  = 5 * time.Minute
)

// 캐시 키 접두사
const (
	PrefixSelectedChat = "selected_chat:"
	PrefixMutedChats   = "muted_chats:"
	PrefixMessages     = "messages:"
)

// ErrMiss is returned when a key is absent
var ErrMiss = errors.New("cache miss")

// Store is the per-user key-value store that keeps session-local state:
// the selected conversation, the mute set and the last-known message lists.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	GetSelectedChat(ctx context.Context, userID string) (string, error)
	SetSelectedChat(ctx context.Context, userID, chatID string) error

	GetMutedChats(ctx context.Context, userID string) ([]string, error)
	SetMutedChats(ctx context.Context, userID string, chatIDs []string) error

	GetMessages(ctx context.Context, userID, chatID string, dest interface{}) error
	SetMessages(ctx context.Context, userID, chatID string, data interface{}, ttl time.Duration) error

	IsAvailable() bool
}

// SelectedChatKey key for the persisted conversation selection
func SelectedChatKey(userID string) string { return PrefixSelectedChat + userID }

// MutedChatsKey key for the persisted mute set
func MutedChatsKey(userID string) string { return PrefixMutedChats + userID }

// MessagesKey key for the cached message list of a conversation
func MessagesKey(userID, chatID string) string {
	return fmt.Sprintf("%s%s:%s", PrefixMessages, userID, chatID)
}

// redisCache Redis 기반 구현
type redisCache struct {
	client *redis.Client
}

// NewService creates a Redis backed Store. A nil client yields the in-memory store.
func NewService(client *redis.Client) Store {
	if client == nil {
		return NewMemory()
	}
	return &redisCache{client: client}
}

func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *redisCache) GetSelectedChat(ctx context.Context, userID string) (string, error) {
	chatID, err := c.client.Get(ctx, SelectedChatKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return chatID, err
}

func (c *redisCache) SetSelectedChat(ctx context.Context, userID, chatID string) error {
	return c.client.Set(ctx, SelectedChatKey(userID), chatID, TTLForever).Err()
}

func (c *redisCache) GetMutedChats(ctx context.Context, userID string) ([]string, error) {
	return c.client.SMembers(ctx, MutedChatsKey(userID)).Result()
}

// SetMutedChats replaces the whole set atomically
func (c *redisCache) SetMutedChats(ctx context.Context, userID string, chatIDs []string) error {
	key := MutedChatsKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(chatIDs) > 0 {
			members := make([]interface{}, len(chatIDs))
			for i, id := range chatIDs {
				members[i] = id
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return err
}

func (c *redisCache) GetMessages(ctx context.Context, userID, chatID string, dest interface{}) error {
	return c.Get(ctx, MessagesKey(userID, chatID), dest)
}

func (c *redisCache) SetMessages(ctx context.Context, userID, chatID string, data interface{}, ttl time.Duration) error {
	return c.Set(ctx, MessagesKey(userID, chatID), data, ttl)
}
