package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/imagehost"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"gorm.io/gorm"
)

const (
	searchLimit = 20

	// EventAccountDeleted is pushed to a member's live connections after deletion
	EventAccountDeleted = "account_deleted"
)

// MemberNotifier reaches the live connections of a member
type MemberNotifier interface {
	IsOnline(memberID string) bool
	Notify(memberID, eventType string, payload interface{})
}

// UserService identity, profile and contact-list logic
type UserService interface {
	EnsureProfile(ctx context.Context, id domain.Identity) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID, displayName string, photo *ImageUpload) (*domain.User, error)
	DeleteAccount(ctx context.Context, userID string) error
	Contacts(ctx context.Context, selfID string) ([]domain.ContactResponse, error)
	Search(ctx context.Context, selfID, query string) ([]domain.ContactResponse, error)
	ToContact(user *domain.User) domain.ContactResponse
}

type userService struct {
	users    repository.UserRepository
	messages MessageService
	access   AccessService
	presence PresenceService
	uploader imagehost.Uploader
	search   ContactSearch
	members  MemberNotifier
	broker   *realtime.Broker
	now      func() time.Time
}

// UserServiceDeps optional collaborators of the user service
type UserServiceDeps struct {
	Uploader imagehost.Uploader
	Search   ContactSearch
	Members  MemberNotifier
}

// NewUserService creates a new UserService
func NewUserService(
	users repository.UserRepository,
	messages MessageService,
	access AccessService,
	presence PresenceService,
	broker *realtime.Broker,
	deps UserServiceDeps,
) UserService {
	return &userService{
		users:    users,
		messages: messages,
		access:   access,
		presence: presence,
		uploader: deps.Uploader,
		search:   deps.Search,
		members:  deps.Members,
		broker:   broker,
		now:      time.Now,
	}
}

// EnsureProfile creates the identity on first sight and stamps lastSeenAt.
// A soft-deleted identity cannot start a new session.
func (s *userService) EnsureProfile(ctx context.Context, id domain.Identity) (*domain.User, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return nil, common.ErrAuthFailure
	}
	if !domain.ValidIdentityID(id.UserID) {
		return nil, fmt.Errorf("%w: unusable identity id %q", common.ErrAuthFailure, id.UserID)
	}

	now := s.now().UnixMilli()
	if err := s.users.Upsert(ctx, &domain.User{
		ID:          id.UserID,
		DisplayName: domain.FallbackDisplayName(id.DisplayName, id.Email),
		Email:       id.Email,
		PhotoURL:    id.PhotoURL,
		Provider:    id.Provider,
		LastSeenAt:  now,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, fmt.Errorf("%w: account deleted", common.ErrForbidden)
	}

	s.index(ctx, user)
	s.changed(ctx)
	return user, nil
}

// Get resolves an identity, deleted ones included
func (s *userService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile renames the identity and optionally replaces its avatar
func (s *userService) UpdateProfile(ctx context.Context, userID, displayName string, photo *ImageUpload) (*domain.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", common.ErrInvalidInput)
	}

	fields := map[string]interface{}{"display_name": name}
	if photo != nil {
		if s.uploader == nil {
			return nil, fmt.Errorf("%w: no image host configured", common.ErrUploadFailed)
		}
		url, err := s.uploader.Upload(ctx, photo.Filename, photo.Body, photo.Size, photo.ContentType)
		if err != nil {
			uploadFailuresTotal.Inc()
			return nil, fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
		}
		fields["photo_url"] = url
	}

	if err := s.users.UpdateProfile(ctx, userID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	if err := s.presence.Touch(ctx, userID); err != nil {
		pkglogger.Warn("presence touch failed for %s: %v", userID, err)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.index(ctx, user)
	s.changed(ctx)
	return user, nil
}

// DeleteAccount soft-deletes the identity so past messages keep their author
func (s *userService) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, userID, s.now().UnixMilli()); err != nil {
		return err
	}

	if s.search != nil {
		if err := s.search.Remove(ctx, userID); err != nil {
			pkglogger.Warn("contact search remove failed for %s: %v", userID, err)
		}
	}
	if s.members != nil {
		s.members.Notify(userID, EventAccountDeleted, nil)
	}
	s.changed(ctx)
	return nil
}

// Contacts lists every named identity except self. Deleted identities stay listed
// only when they share a private conversation with self. Most recent conversation first.
func (s *userService) Contacts(ctx context.Context, selfID string) ([]domain.ContactResponse, error) {
	users, err := s.users.ListExcept(ctx, selfID)
	if err != nil {
		return nil, err
	}
	latest, err := s.messages.LatestByConversation(ctx, selfID)
	if err != nil {
		return nil, err
	}
	requests, err := s.access.List(ctx, selfID)
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.ContactResponse, 0, len(users))
	for i := range users {
		u := &users[i]
		last, talked := latest[domain.Peer(u.ID)]
		if u.IsDeleted && !talked {
			continue
		}

		contact := s.ToContact(u)
		if talked {
			contact.LatestMessage = last.ToResponse()
		}
		if req := domain.LatestForPair(requests, selfID, u.ID); req != nil {
			contact.RequestStatus = string(req.Status)
		}
		contacts = append(contacts, contact)
	}

	sortContacts(contacts)
	return contacts, nil
}

func sortContacts(contacts []domain.ContactResponse) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := latestAt(contacts[i]), latestAt(contacts[j])
		if a != b {
			return a > b
		}
		return strings.ToLower(contacts[i].DisplayName) < strings.ToLower(contacts[j].DisplayName)
	})
}

func latestAt(c domain.ContactResponse) int64 {
	if c.LatestMessage == nil {
		return 0
	}
	return c.LatestMessage.CreatedAt
}

// Search finds live identities by display name. Elasticsearch is used when
// configured; a failing or missing index falls back to a SQL match.
func (s *userService) Search(ctx context.Context, selfID, query string) ([]domain.ContactResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.ContactResponse{}, nil
	}

	users, err := s.searchIndexed(ctx, selfID, query)
	if err != nil {
		pkglogger.Warn("contact search fallback to SQL: %v", err)
		users, err = s.users.SearchByName(ctx, selfID, query, searchLimit)
		if err != nil {
			return nil, err
		}
	}

	out := make([]domain.ContactResponse, 0, len(users))
	for i := range users {
		out = append(out, s.ToContact(&users[i]))
	}
	return out, nil
}

var errSearchDisabled = errors.New("contact search not configured")

func (s *userService) searchIndexed(ctx context.Context, selfID, query string) ([]domain.User, error) {
	if s.search == nil {
		return nil, errSearchDisabled
	}
	ids, err := s.search.Search(ctx, query, searchLimit+1)
	if err != nil {
		return nil, err
	}
	found, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok || u.ID == selfID || u.IsDeleted {
			continue
		}
		users = append(users, u)
		if len(users) == searchLimit {
			break
		}
	}
	return users, nil
}

// ToContact renders an identity with its presence text and live-connection flag
func (s *userService) ToContact(user *domain.User) domain.ContactResponse {
	now := s.now()
	online := IsActive(user.LastSeenAt, now)
	if s.members != nil && s.members.IsOnline(user.ID) {
		online = true
	}
	if user.IsDeleted {
		online = false
	}
	return domain.ContactResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		LastSeenAt:  user.LastSeenAt,
		Presence:    Describe(user.LastSeenAt, now),
		Online:      online,
		IsDeleted:   user.IsDeleted,
	}
}

func (s *userService) index(ctx context.Context, user *domain.User) {
	if s.search == nil {
		return
	}
	if err := s.search.Index(ctx, user); err != nil {
		pkglogger.Warn("contact search index failed for %s: %v", user.ID, err)
	}
}

func (s *userService) changed(ctx context.Context) {
	if s.broker != nil {
		s.broker.Notify(ctx, realtime.TopicUsers)
	}
}
