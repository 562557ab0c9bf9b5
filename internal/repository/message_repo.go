package repository

import (
	"context"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository chat message data access interface
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateContent(ctx context.Context, id string, content domain.Content) error
	Delete(ctx context.Context, id string) error
	ListGlobal(ctx context.Context) ([]domain.Message, error)
	ListByPair(ctx context.Context, a, b string) ([]domain.Message, error)
	ListVisibleTo(ctx context.Context, selfID string, since int64) ([]domain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id string, content domain.Content) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_kind": content.Kind,
			"content_body": content.Body,
		}).Error
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{}).Error
}

// ListGlobal returns the global room in creation order
func (r *messageRepository) ListGlobal(ctx context.Context) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("visibility = ?", domain.VisibilityGlobal).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// ListByPair returns the private thread between a and b in creation order
func (r *messageRepository) ListByPair(ctx context.Context, a, b string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("visibility = ? AND pair_key = ?", domain.VisibilityPrivate, domain.PairKey(a, b)).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// ListVisibleTo returns global messages plus private ones involving selfID, created after since
func (r *messageRepository) ListVisibleTo(ctx context.Context, selfID string, since int64) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("created_at > ?", since).
		Where(
			r.db.Where("visibility = ?", domain.VisibilityGlobal).
				Or("visibility = ? AND (participant_a = ? OR participant_b = ?)", domain.VisibilityPrivate, selfID, selfID),
		).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}
