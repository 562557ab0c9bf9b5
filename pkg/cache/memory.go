package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryCache keeps state in process when Redis is not configured. Values are stored
// JSON-encoded so callers observe the same copy semantics as with Redis.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-process Store
func NewMemory() Store {
	return &memoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *memoryCache) IsAvailable() bool {
	return true
}

func (c *memoryCache) load(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := c.load(key)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.load(key)
	return ok, nil
}

func (c *memoryCache) GetSelectedChat(ctx context.Context, userID string) (string, error) {
	var chatID string
	if err := c.Get(ctx, SelectedChatKey(userID), &chatID); err != nil {
		return "", err
	}
	return chatID, nil
}

func (c *memoryCache) SetSelectedChat(ctx context.Context, userID, chatID string) error {
	return c.Set(ctx, SelectedChatKey(userID), chatID, TTLForever)
}

func (c *memoryCache) GetMutedChats(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := c.Get(ctx, MutedChatsKey(userID), &ids)
	if err == ErrMiss {
		return nil, nil
	}
	return ids, err
}

func (c *memoryCache) SetMutedChats(ctx context.Context, userID string, chatIDs []string) error {
	ids := append([]string(nil), chatIDs...)
	sort.Strings(ids)
	return c.Set(ctx, MutedChatsKey(userID), ids, TTLForever)
}

func (c *memoryCache) GetMessages(ctx context.Context, userID, chatID string, dest interface{}) error {
	return c.Get(ctx, MessagesKey(userID, chatID), dest)
}

func (c *memoryCache) SetMessages(ctx context.Context, userID, chatID string, data interface{}, ttl time.Duration) error {
	return c.Set(ctx, MessagesKey(userID, chatID), data, ttl)
}
