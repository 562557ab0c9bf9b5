package service

import (
	"context"
	"time"

	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
)

// ActiveWindow is how recent a last-seen timestamp must be to count as active
const ActiveWindow = time.Minute

// PresenceService publishes the last-active signal of an identity
type PresenceService interface {
	Touch(ctx context.Context, selfID string) error
}

type presenceService struct {
	users  repository.UserRepository
	broker *realtime.Broker
	now    func() time.Time
}

// NewPresenceService creates a new PresenceService
func NewPresenceService(users repository.UserRepository, broker *realtime.Broker) PresenceService {
	return &presenceService{users: users, broker: broker, now: time.Now}
}

// Touch stamps the identity's lastSeenAt with the current time
func (s *presenceService) Touch(ctx context.Context, selfID string) error {
	if err := s.users.TouchLastSeen(ctx, selfID, s.now().UnixMilli()); err != nil {
		return err
	}
	if s.broker != nil {
		s.broker.Notify(ctx, realtime.TopicUsers)
	}
	return nil
}

// Describe renders a last-seen timestamp relative to now:
// "Active now", "Last seen: 3:04 PM" on the same day, "Last seen: Jan 2, 3:04 PM" otherwise.
func Describe(lastSeenAt int64, now time.Time) string {
	seen := time.UnixMilli(lastSeenAt).In(now.Location())
	if now.Sub(seen) < ActiveWindow {
		return "Active now"
	}

	clock := seen.Format("3:04 PM")
	if sameDay(seen, now) {
		return "Last seen: " + clock
	}
	return "Last seen: " + seen.Format("Jan 2") + ", " + clock
}

// IsActive reports whether lastSeenAt falls inside the active window
func IsActive(lastSeenAt int64, now time.Time) bool {
	return now.Sub(time.UnixMilli(lastSeenAt)) < ActiveWindow
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
