package service

import (
	"context"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.addUser(t, "alice", "Alice")
	f.addUser(t, "bob", "Bob")
	f.addUser(t, "carol", "Carol")
	return f
}

func TestAccessService_SendRequest(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	req, err := f.access.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, "alice", req.RequesterID)
	assert.Equal(t, "Alice", req.RequesterName)
	assert.Equal(t, "bob", req.RecipientID)
	assert.Equal(t, []string{"alice", "bob"}, req.Participants())

	_, err = f.access.SendRequest(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrDuplicateRequest)

	_, err = f.access.SendRequest(ctx, "bob", "alice")
	assert.ErrorIs(t, err, common.ErrDuplicateRequest, "the pair is unordered")
}

func TestAccessService_SendRequestValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.SoftDelete(ctx, "carol", 1))

	tests := []struct {
		name string
		to   string
		err  error
	}{
		{"self", "alice", common.ErrInvalidInput},
		{"blank", "  ", common.ErrInvalidInput},
		{"unknown", "zed", common.ErrUserNotFound},
		{"deleted", "carol", common.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.access.SendRequest(ctx, "alice", tt.to)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAccessService_AcceptIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	req, err := f.access.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.access.Accept(ctx, "alice", req.ID)
	assert.ErrorIs(t, err, common.ErrUnauthorized, "only the recipient accepts")

	accepted, err := f.access.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, accepted.Status)

	again, err := f.access.Accept(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, again.Status)

	_, err = f.access.Reject(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	_, err = f.access.Accept(ctx, "bob", "missing")
	assert.ErrorIs(t, err, common.ErrRequestNotFound)
}

func TestAccessService_RejectClosesPair(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	req, err := f.access.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	rejected, err := f.access.Reject(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	assert.Empty(t, rejected.RevokedBy)

	_, err = f.access.Reject(ctx, "bob", req.ID)
	assert.NoError(t, err, "rejecting twice is a no-op")

	_, err = f.access.Accept(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, common.ErrRequestClosed)

	_, err = f.access.SendRequest(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrRequestClosed)

	// only the decliner can reopen
	_, err = f.access.Grant(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	granted, err := f.access.Grant(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, granted.Status)
}

func TestAccessService_RevokeAndGrant(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.connect(t, "alice", "bob")

	ok, err := f.access.CanCommunicate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := f.access.Revoke(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, revoked.Status)
	assert.Equal(t, "alice", revoked.RevokedBy)

	ok, err = f.access.CanCommunicate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.access.Revoke(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrNoActiveAccess)

	_, err = f.access.Grant(ctx, "bob", "alice")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	granted, err := f.access.Grant(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, granted.Status)
	assert.Empty(t, granted.RevokedBy)

	ok, err = f.access.CanCommunicate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := f.access.Grant(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, again.Status)
}

func TestAccessService_RevokeWithoutAccess(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.access.Revoke(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrNoActiveAccess)

	_, err = f.access.SendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.access.Revoke(ctx, "alice", "bob")
	assert.ErrorIs(t, err, common.ErrNoActiveAccess, "pending is not accepted")

	_, err = f.access.Grant(ctx, "alice", "carol")
	assert.ErrorIs(t, err, common.ErrRequestNotFound)
}

func TestAccessService_StatusAndPendingCount(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.access.SendRequest(ctx, "bob", "alice")
	require.NoError(t, err)
	f.advance(time.Second)
	_, err = f.access.SendRequest(ctx, "carol", "alice")
	require.NoError(t, err)
	_, err = f.access.SendRequest(ctx, "alice", "dave")
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	n, err := f.access.PendingCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.access.PendingCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "outgoing requests are not pending for the requester")

	st, err := f.access.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.RequestPending, st.Status)

	st, err = f.access.Status(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Nil(t, st)

	list, err := f.access.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAccessService_SubscribeAllPushesChanges(t *testing.T) {
	f := newLedgerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := f.access.SubscribeAll(ctx, "bob")
	defer sub.Close()

	first := <-sub.C
	require.NoError(t, first.Err)
	assert.Empty(t, first.Items)

	req, err := f.access.SendRequest(context.Background(), "alice", "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snap := <-sub.C:
			return len(snap.Items) == 1 && snap.Items[0].ID == req.ID
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
