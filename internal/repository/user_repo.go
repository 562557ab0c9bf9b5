package repository

import (
	"context"
	"strings"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository chat identity data access interface
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	Upsert(ctx context.Context, user *domain.User) error
	UpdateProfile(ctx context.Context, id string, fields map[string]interface{}) error
	TouchLastSeen(ctx context.Context, id string, at int64) error
	SoftDelete(ctx context.Context, id string, at int64) error
	ListExcept(ctx context.Context, selfID string) ([]domain.User, error)
	SearchByName(ctx context.Context, selfID, query string, limit int) ([]domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByID returns gorm.ErrRecordNotFound when the identity is unknown
func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	var users []domain.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// Upsert creates the identity on first sight. An existing row only gets its
// provider fields and last_seen_at refreshed; the display name chosen by the user stays.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "provider", "last_seen_at"}),
	}).Create(user).Error
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) TouchLastSeen(ctx context.Context, id string, at int64) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		UpdateColumn("last_seen_at", at).Error
}

// SoftDelete keeps the row so past messages still resolve their author
func (r *userRepository) SoftDelete(ctx context.Context, id string, at int64) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"is_deleted": true, "last_seen_at": at}).Error
}

// ListExcept returns every named identity other than selfID, deleted ones included
func (r *userRepository) ListExcept(ctx context.Context, selfID string) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("id <> ? AND display_name <> ''", selfID).
		Order("display_name ASC").
		Find(&users).Error
	return users, err
}

func (r *userRepository) SearchByName(ctx context.Context, selfID, query string, limit int) ([]domain.User, error) {
	var users []domain.User
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	err := r.db.WithContext(ctx).
		Where("id <> ? AND is_deleted = ? AND LOWER(display_name) LIKE ? ESCAPE '!'", selfID, false, pattern).
		Order("display_name ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
