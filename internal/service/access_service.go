package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessService is the chat-access ledger: it decides whether two identities may
// exchange private messages.
type AccessService interface {
	SendRequest(ctx context.Context, fromID, toID string) (*domain.AccessRequest, error)
	Accept(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error)
	Reject(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error)
	Revoke(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error)
	Grant(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error)
	CanCommunicate(ctx context.Context, a, b string) (bool, error)
	Status(ctx context.Context, selfID, otherID string) (*domain.AccessRequest, error)
	List(ctx context.Context, selfID string) ([]domain.AccessRequest, error)
	PendingCount(ctx context.Context, selfID string) (int, error)
	SubscribeAll(ctx context.Context, selfID string) *realtime.Subscription[domain.AccessRequest]
}

type accessService struct {
	requests repository.AccessRequestRepository
	users    repository.UserRepository
	broker   *realtime.Broker
	now      func() time.Time
}

// NewAccessService creates a new AccessService
func NewAccessService(requests repository.AccessRequestRepository, users repository.UserRepository, broker *realtime.Broker) AccessService {
	return &accessService{
		requests: requests,
		users:    users,
		broker:   broker,
		now:      time.Now,
	}
}

// SendRequest opens a pending request from fromID to toID. A pair that already has
// an active request fails with ErrDuplicateRequest; a closed pair cannot be re-requested.
func (s *accessService) SendRequest(ctx context.Context, fromID, toID string) (*domain.AccessRequest, error) {
	toID = strings.TrimSpace(toID)
	if toID == "" || fromID == toID {
		return nil, fmt.Errorf("%w: cannot request access to yourself", common.ErrInvalidInput)
	}

	recipient, err := s.users.FindByID(ctx, toID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	if recipient.IsDeleted {
		return nil, common.ErrUserNotFound
	}

	requesterName := "User"
	if requester, err := s.users.FindByID(ctx, fromID); err == nil {
		requesterName = domain.FallbackDisplayName(requester.DisplayName, requester.Email)
	}

	now := s.now().UnixMilli()
	a, b := domain.Pair(fromID, toID)
	req := &domain.AccessRequest{
		ID:            uuid.NewString(),
		PairKey:       domain.PairKey(fromID, toID),
		ParticipantA:  a,
		ParticipantB:  b,
		RequesterID:   fromID,
		RequesterName: requesterName,
		RecipientID:   toID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        domain.RequestPending,
	}
	if err := s.requests.CreateIfOpen(ctx, req); err != nil {
		return nil, err
	}

	s.changed(ctx, "send")
	return req, nil
}

// Accept moves a pending request to accepted. Only the recipient may act.
// Accepting an accepted request is a no-op.
func (s *accessService) Accept(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error) {
	req, err := s.findForRecipient(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case domain.RequestAccepted:
		return req, nil
	case domain.RequestRejected:
		return nil, common.ErrRequestClosed
	}
	return s.transition(ctx, req, domain.RequestAccepted, "", "accept")
}

// Reject moves a pending request to rejected. Only the recipient may act.
// Rejecting a rejected request is a no-op; an accepted one must be revoked instead.
func (s *accessService) Reject(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error) {
	req, err := s.findForRecipient(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case domain.RequestRejected:
		return req, nil
	case domain.RequestAccepted:
		return nil, fmt.Errorf("%w: accepted requests are closed by revoke", common.ErrInvalidTransition)
	}
	return s.transition(ctx, req, domain.RequestRejected, "", "reject")
}

// Revoke closes the accepted record for the pair and records byID as the closing party
func (s *accessService) Revoke(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error) {
	req, err := s.requests.FindLatestByPair(ctx, byID, otherID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.Status != domain.RequestAccepted {
		return nil, common.ErrNoActiveAccess
	}
	return s.transition(ctx, req, domain.RequestRejected, byID, "revoke")
}

// Grant reopens a closed record. Only the party that closed it may do so.
func (s *accessService) Grant(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error) {
	req, err := s.requests.FindLatestByPair(ctx, byID, otherID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, common.ErrRequestNotFound
	}

	switch req.Status {
	case domain.RequestAccepted:
		return req, nil
	case domain.RequestPending:
		return nil, fmt.Errorf("%w: pending requests are answered with accept", common.ErrInvalidTransition)
	}
	if req.ClosedBy() != byID {
		return nil, common.ErrUnauthorized
	}
	return s.transition(ctx, req, domain.RequestAccepted, "", "grant")
}

// CanCommunicate is true iff the latest record for the pair is accepted
func (s *accessService) CanCommunicate(ctx context.Context, a, b string) (bool, error) {
	req, err := s.requests.FindLatestByPair(ctx, a, b)
	if err != nil {
		return false, err
	}
	return req != nil && req.Status == domain.RequestAccepted, nil
}

// Status returns the latest record for the pair, nil when there is none
func (s *accessService) Status(ctx context.Context, selfID, otherID string) (*domain.AccessRequest, error) {
	return s.requests.FindLatestByPair(ctx, selfID, otherID)
}

func (s *accessService) List(ctx context.Context, selfID string) ([]domain.AccessRequest, error) {
	return s.requests.ListForUser(ctx, selfID)
}

func (s *accessService) PendingCount(ctx context.Context, selfID string) (int, error) {
	reqs, err := s.requests.ListForUser(ctx, selfID)
	if err != nil {
		return 0, err
	}
	return domain.CountPendingFor(reqs, selfID), nil
}

// SubscribeAll streams every record where selfID is a participant
func (s *accessService) SubscribeAll(ctx context.Context, selfID string) *realtime.Subscription[domain.AccessRequest] {
	return realtime.Subscribe(ctx, s.broker, realtime.TopicAccessRequests, func(ctx context.Context) ([]domain.AccessRequest, error) {
		return s.requests.ListForUser(ctx, selfID)
	})
}

func (s *accessService) findForRecipient(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrRequestNotFound
		}
		return nil, err
	}
	if req.RecipientID != actorID {
		return nil, common.ErrUnauthorized
	}
	return req, nil
}

// transition applies a guarded status change. Losing a race to a concurrent
// transition is reported as ErrInvalidTransition unless the winner reached the same state.
func (s *accessService) transition(ctx context.Context, req *domain.AccessRequest, to domain.RequestStatus, revokedBy, action string) (*domain.AccessRequest, error) {
	now := s.now().UnixMilli()
	ok, err := s.requests.Transition(ctx, req.ID, req.Status, to, revokedBy, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.requests.FindByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, common.ErrInvalidTransition
	}

	req.Status = to
	req.RevokedBy = revokedBy
	req.UpdatedAt = now
	s.changed(ctx, action)
	return req, nil
}

func (s *accessService) changed(ctx context.Context, action string) {
	ledgerTransitionsTotal.WithLabelValues(action).Inc()
	if s.broker != nil {
		s.broker.Notify(ctx, realtime.TopicAccessRequests)
	}
}
