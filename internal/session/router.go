package session

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/pkg/cache"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
)

// ResolveFunc looks up an identity by id
type ResolveFunc func(ctx context.Context, userID string) (*domain.User, error)

// Router tracks the active conversation of a session and keeps the
// persisted selection and per-conversation message cache.
type Router struct {
	selfID   string
	store    cache.Store
	cacheTTL time.Duration
	active   domain.ConversationKey
}

// NewRouter creates a router starting on Global
func NewRouter(selfID string, store cache.Store, cacheTTL time.Duration) *Router {
	if cacheTTL <= 0 {
		cacheTTL = cache.TTLMessages
	}
	return &Router{selfID: selfID, store: store, cacheTTL: cacheTTL, active: domain.Global}
}

// Active returns the active conversation
func (r *Router) Active() domain.ConversationKey {
	return r.active
}

// Restore reloads the persisted selection. A target that no longer resolves to a
// live identity falls back to Global.
func (r *Router) Restore(ctx context.Context, resolve ResolveFunc) domain.ConversationKey {
	r.active = domain.Global

	saved, err := r.store.GetSelectedChat(ctx, r.selfID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			pkglogger.Warn("session %s: restore selection failed: %v", r.selfID, err)
		}
		return r.active
	}

	key := domain.ParseConversationKey(saved)
	if key.IsGlobal() || key.PeerID() == r.selfID {
		return r.active
	}
	user, err := resolve(ctx, key.PeerID())
	if err != nil || user == nil || user.IsDeleted {
		return r.active
	}
	r.active = key
	return r.active
}

// Select makes key active and persists the choice
func (r *Router) Select(ctx context.Context, key domain.ConversationKey) error {
	r.active = key
	return r.store.SetSelectedChat(ctx, r.selfID, key.String())
}

// Filter narrows a message list to the active conversation
func (r *Router) Filter(all []domain.Message) []domain.Message {
	return domain.FilterConversation(r.selfID, all, r.active)
}

// Cached returns the last-known message list of key
func (r *Router) Cached(ctx context.Context, key domain.ConversationKey) ([]domain.Message, bool) {
	var msgs []domain.Message
	if err := r.store.GetMessages(ctx, r.selfID, key.String(), &msgs); err != nil {
		return nil, false
	}
	return msgs, true
}

// Remember replaces the cached message list of key
func (r *Router) Remember(ctx context.Context, key domain.ConversationKey, msgs []domain.Message) {
	if err := r.store.SetMessages(ctx, r.selfID, key.String(), msgs, r.cacheTTL); err != nil {
		pkglogger.Warn("session %s: cache messages failed: %v", r.selfID, err)
	}
}
