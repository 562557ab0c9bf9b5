package repository

import (
	"context"
	"errors"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// AccessRequestRepository chat-access ledger data access interface
type AccessRequestRepository interface {
	CreateIfOpen(ctx context.Context, req *domain.AccessRequest) error
	FindByID(ctx context.Context, id string) (*domain.AccessRequest, error)
	FindLatestByPair(ctx context.Context, a, b string) (*domain.AccessRequest, error)
	ListForUser(ctx context.Context, userID string) ([]domain.AccessRequest, error)
	Transition(ctx context.Context, id string, from, to domain.RequestStatus, revokedBy string, at int64) (bool, error)
}

type accessRequestRepository struct {
	db *gorm.DB
}

// NewAccessRequestRepository creates a new AccessRequestRepository
func NewAccessRequestRepository(db *gorm.DB) AccessRequestRepository {
	return &accessRequestRepository{db: db}
}

// CreateIfOpen inserts a pending request unless the pair already has one.
// An active record yields ErrDuplicateRequest, a closed one ErrRequestClosed.
// A concurrent insert that loses on the pair_key unique index also yields
// ErrDuplicateRequest.
func (r *accessRequestRepository) CreateIfOpen(ctx context.Context, req *domain.AccessRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.AccessRequest
		if err := tx.Where("pair_key = ?", req.PairKey).Find(&existing).Error; err != nil {
			return err
		}
		for i := range existing {
			if existing[i].IsActive() {
				return common.ErrDuplicateRequest
			}
		}
		if len(existing) > 0 {
			return common.ErrRequestClosed
		}
		if err := tx.Create(req).Error; err != nil {
			if isDuplicateKey(err) {
				return common.ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
}

func (r *accessRequestRepository) FindByID(ctx context.Context, id string) (*domain.AccessRequest, error) {
	var req domain.AccessRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindLatestByPair returns nil, nil when the pair has no history
func (r *accessRequestRepository) FindLatestByPair(ctx context.Context, a, b string) (*domain.AccessRequest, error) {
	var req domain.AccessRequest
	err := r.db.WithContext(ctx).
		Where("pair_key = ?", domain.PairKey(a, b)).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ListForUser returns every request where userID is a participant, newest first
func (r *accessRequestRepository) ListForUser(ctx context.Context, userID string) ([]domain.AccessRequest, error) {
	var reqs []domain.AccessRequest
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// Transition moves a request from one status to another. It reports false when the
// stored status no longer matches from, so concurrent transitions cannot both win.
func (r *accessRequestRepository) Transition(ctx context.Context, id string, from, to domain.RequestStatus, revokedBy string, at int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.AccessRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"revoked_by": revokedBy,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
