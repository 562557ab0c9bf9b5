package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/imagehost"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultEditWindow is how long after creation a message may be edited
const DefaultEditWindow = 5 * time.Minute

// ImageUpload is an image attached to a send or profile update
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MessageService business logic for global and private messages
type MessageService interface {
	Send(ctx context.Context, authorID string, req *domain.SendMessageRequest, image *ImageUpload) (*domain.Message, error)
	Edit(ctx context.Context, authorID, messageID, text string) (*domain.Message, error)
	Delete(ctx context.Context, authorID, messageID string) error
	List(ctx context.Context, selfID string, key domain.ConversationKey) ([]domain.Message, error)
	LatestByConversation(ctx context.Context, selfID string) (map[domain.ConversationKey]domain.Message, error)
	SubscribeConversation(ctx context.Context, selfID string, key domain.ConversationKey) *realtime.Subscription[domain.Message]
	SubscribeInbound(ctx context.Context, selfID string, since int64) *realtime.Subscription[domain.Message]
}

type messageService struct {
	messages   repository.MessageRepository
	users      repository.UserRepository
	access     AccessService
	uploader   imagehost.Uploader
	broker     *realtime.Broker
	editWindow time.Duration
	now        func() time.Time
}

// NewMessageService creates a new MessageService. A nil uploader rejects image sends.
func NewMessageService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	access AccessService,
	uploader imagehost.Uploader,
	broker *realtime.Broker,
	editWindow time.Duration,
) MessageService {
	if editWindow <= 0 {
		editWindow = DefaultEditWindow
	}
	return &messageService{
		messages:   messages,
		users:      users,
		access:     access,
		uploader:   uploader,
		broker:     broker,
		editWindow: editWindow,
		now:        time.Now,
	}
}

// Send persists a message to the global room, or to the private thread with
// req.ToUserID when the pair has accepted access.
func (s *messageService) Send(ctx context.Context, authorID string, req *domain.SendMessageRequest, image *ImageUpload) (*domain.Message, error) {
	if image == nil && strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: message is empty", common.ErrInvalidInput)
	}

	author, err := s.users.FindByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	if author.IsDeleted {
		return nil, common.ErrForbidden
	}

	msg := &domain.Message{
		ID:         req.ID,
		AuthorID:   authorID,
		AuthorName: domain.FallbackDisplayName(author.DisplayName, author.Email),
		CreatedAt:  req.CreatedAt,
		Visibility: domain.VisibilityGlobal,
		Status:     domain.StatusSent,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt <= 0 {
		msg.CreatedAt = s.now().UnixMilli()
	}

	if to := strings.TrimSpace(req.ToUserID); to != "" {
		if err := s.checkRecipient(ctx, authorID, to); err != nil {
			return nil, err
		}
		msg.Visibility = domain.VisibilityPrivate
		msg.RecipientID = to
		msg.SetParticipants(authorID, to)
	}

	if image != nil {
		url, err := s.upload(ctx, image)
		if err != nil {
			return nil, err
		}
		msg.SetContent(domain.Image(url))
	} else {
		msg.SetContent(domain.ClassifyText(req.Text))
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	messagesSentTotal.WithLabelValues(string(msg.Visibility), string(msg.ContentKind)).Inc()
	s.changed(ctx)
	return msg, nil
}

func (s *messageService) checkRecipient(ctx context.Context, authorID, to string) error {
	if to == authorID {
		return fmt.Errorf("%w: cannot message yourself", common.ErrInvalidInput)
	}
	recipient, err := s.users.FindByID(ctx, to)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrUserNotFound
		}
		return err
	}
	if recipient.IsDeleted {
		return common.ErrUserNotFound
	}

	ok, err := s.access.CanCommunicate(ctx, authorID, to)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrNoActiveAccess
	}
	return nil
}

func (s *messageService) upload(ctx context.Context, image *ImageUpload) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("%w: no image host configured", common.ErrUploadFailed)
	}
	url, err := s.uploader.Upload(ctx, image.Filename, image.Body, image.Size, image.ContentType)
	if err != nil {
		uploadFailuresTotal.Inc()
		return "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}
	return url, nil
}

// Edit replaces the text of a message the author sent within the edit window
func (s *messageService) Edit(ctx context.Context, authorID, messageID, text string) (*domain.Message, error) {
	msg, err := s.findOwned(ctx, authorID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Content().IsImage() {
		return nil, fmt.Errorf("%w: image messages cannot be edited", common.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is empty", common.ErrInvalidInput)
	}
	if !msg.EditableAt(s.now(), s.editWindow) {
		return nil, common.ErrEditWindowExpired
	}

	content := domain.Text(text)
	if err := s.messages.UpdateContent(ctx, msg.ID, content); err != nil {
		return nil, err
	}
	msg.SetContent(content)

	s.changed(ctx)
	return msg, nil
}

// Delete removes a message permanently. Only the author may delete it.
func (s *messageService) Delete(ctx context.Context, authorID, messageID string) error {
	msg, err := s.findOwned(ctx, authorID, messageID)
	if err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, msg.ID); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

// List returns the messages of one conversation as selfID sees it
func (s *messageService) List(ctx context.Context, selfID string, key domain.ConversationKey) ([]domain.Message, error) {
	var (
		msgs []domain.Message
		err  error
	)
	if key.IsGlobal() {
		msgs, err = s.messages.ListGlobal(ctx)
	} else {
		msgs, err = s.messages.ListByPair(ctx, selfID, key.PeerID())
	}
	if err != nil {
		return nil, err
	}
	return domain.FilterConversation(selfID, msgs, key), nil
}

// LatestByConversation returns the newest message of every conversation selfID can see
func (s *messageService) LatestByConversation(ctx context.Context, selfID string) (map[domain.ConversationKey]domain.Message, error) {
	msgs, err := s.messages.ListVisibleTo(ctx, selfID, 0)
	if err != nil {
		return nil, err
	}
	latest := make(map[domain.ConversationKey]domain.Message)
	for i := range msgs {
		key := msgs[i].ConversationFor(selfID)
		if cur, ok := latest[key]; !ok || msgs[i].CreatedAt >= cur.CreatedAt {
			latest[key] = msgs[i]
		}
	}
	return latest, nil
}

// SubscribeConversation streams the full message list of one conversation
func (s *messageService) SubscribeConversation(ctx context.Context, selfID string, key domain.ConversationKey) *realtime.Subscription[domain.Message] {
	return realtime.Subscribe(ctx, s.broker, realtime.TopicMessages, func(ctx context.Context) ([]domain.Message, error) {
		return s.List(ctx, selfID, key)
	})
}

// SubscribeInbound streams every message visible to selfID created after since
func (s *messageService) SubscribeInbound(ctx context.Context, selfID string, since int64) *realtime.Subscription[domain.Message] {
	return realtime.Subscribe(ctx, s.broker, realtime.TopicMessages, func(ctx context.Context) ([]domain.Message, error) {
		return s.messages.ListVisibleTo(ctx, selfID, since)
	})
}

func (s *messageService) findOwned(ctx context.Context, authorID, messageID string) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrMessageNotFound
		}
		return nil, err
	}
	if msg.AuthorID != authorID {
		return nil, common.ErrForbidden
	}
	return msg, nil
}

func (s *messageService) changed(ctx context.Context) {
	if s.broker != nil {
		s.broker.Notify(ctx, realtime.TopicMessages)
	}
}
