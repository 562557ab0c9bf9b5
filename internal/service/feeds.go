package service

import (
	"context"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/damoang/angple-chat/pkg/ratelimit"
)

// Feeds exposes the services as the live streams and send path of a chat session
type Feeds struct {
	messages MessageService
	access   AccessService
	users    UserService
	sends    ratelimit.Limiter
}

// NewFeeds creates a new Feeds. sends is the per-user send quota shared with
// POST /messages; nil means unlimited.
func NewFeeds(messages MessageService, access AccessService, users UserService, sends ratelimit.Limiter) *Feeds {
	return &Feeds{messages: messages, access: access, users: users, sends: sends}
}

func (f *Feeds) SubscribeConversation(ctx context.Context, selfID string, key domain.ConversationKey) *realtime.Subscription[domain.Message] {
	return f.messages.SubscribeConversation(ctx, selfID, key)
}

func (f *Feeds) SubscribeInbound(ctx context.Context, selfID string, since int64) *realtime.Subscription[domain.Message] {
	return f.messages.SubscribeInbound(ctx, selfID, since)
}

func (f *Feeds) SubscribeRequests(ctx context.Context, selfID string) *realtime.Subscription[domain.AccessRequest] {
	return f.access.SubscribeAll(ctx, selfID)
}

func (f *Feeds) ResolveUser(ctx context.Context, userID string) (*domain.User, error) {
	return f.users.Get(ctx, userID)
}

// Send persists a text message typed into a live session
func (f *Feeds) Send(ctx context.Context, authorID string, req *domain.SendMessageRequest) (*domain.Message, error) {
	if f.sends != nil {
		res, err := f.sends.Allow(ctx, authorID)
		switch {
		case err != nil:
			pkglogger.Warn("send quota check failed for %s: %v", authorID, err)
		case !res.Allowed:
			return nil, common.ErrRateLimited
		}
	}
	return f.messages.Send(ctx, authorID, req, nil)
}
