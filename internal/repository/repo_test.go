package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Message{}, &domain.AccessRequest{}))
	return db
}

func TestUserRepository_UpsertKeepsChosenName(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "alice", DisplayName: "Alice", Email: "a@x.io", LastSeenAt: 1}))
	require.NoError(t, repo.UpdateProfile(ctx, "alice", map[string]interface{}{"display_name": "Ali"}))
	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "alice", DisplayName: "Alice", Email: "new@x.io", LastSeenAt: 5}))

	u, err := repo.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Ali", u.DisplayName)
	assert.Equal(t, "new@x.io", u.Email)
	assert.Equal(t, int64(5), u.LastSeenAt)
}

func TestUserRepository_SoftDeleteAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	for _, u := range []domain.User{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "carol", DisplayName: "Carol"},
		{ID: "ghost", DisplayName: ""},
	} {
		u := u
		require.NoError(t, repo.Upsert(ctx, &u))
	}
	require.NoError(t, repo.SoftDelete(ctx, "carol", 99))

	users, err := repo.ListExcept(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].ID)
	assert.Equal(t, "carol", users[1].ID)
	assert.True(t, users[1].IsDeleted)
	assert.Equal(t, int64(99), users[1].LastSeenAt)

	found, err := repo.SearchByName(ctx, "alice", "CA", 10)
	require.NoError(t, err)
	assert.Empty(t, found, "deleted identities are not searchable")

	found, err = repo.SearchByName(ctx, "alice", "bo", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].ID)
}

func TestUserRepository_UpdateProfileUnknown(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	err := repo.UpdateProfile(context.Background(), "nobody", map[string]interface{}{"display_name": "x"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMessageRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(setupTestDB(t))

	global := domain.Message{ID: "g1", AuthorID: "alice", CreatedAt: 10, Visibility: domain.VisibilityGlobal, Status: domain.StatusSent}
	global.SetContent(domain.Text("hello all"))
	ab := domain.Message{ID: "p1", AuthorID: "bob", RecipientID: "alice", CreatedAt: 20, Visibility: domain.VisibilityPrivate, Status: domain.StatusSent}
	ab.SetParticipants("bob", "alice")
	ab.SetContent(domain.Text("hi alice"))
	bc := domain.Message{ID: "p2", AuthorID: "bob", RecipientID: "carol", CreatedAt: 30, Visibility: domain.VisibilityPrivate, Status: domain.StatusSent}
	bc.SetParticipants("bob", "carol")
	bc.SetContent(domain.Text("hi carol"))

	for _, m := range []*domain.Message{&bc, &ab, &global} {
		require.NoError(t, repo.Create(ctx, m))
	}

	msgs, err := repo.ListGlobal(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "g1", msgs[0].ID)

	msgs, err = repo.ListByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "p1", msgs[0].ID)

	msgs, err = repo.ListVisibleTo(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "g1", msgs[0].ID)
	assert.Equal(t, "p1", msgs[1].ID)

	msgs, err = repo.ListVisibleTo(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "p1", msgs[0].ID)

	require.NoError(t, repo.UpdateContent(ctx, "p1", domain.Text("edited")))
	m, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.Text("edited"), m.Content())

	require.NoError(t, repo.Delete(ctx, "p1"))
	_, err = repo.FindByID(ctx, "p1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func newRequest(id, from, to string, createdAt int64) *domain.AccessRequest {
	a, b := domain.Pair(from, to)
	return &domain.AccessRequest{
		ID:           id,
		PairKey:      domain.PairKey(from, to),
		ParticipantA: a,
		ParticipantB: b,
		RequesterID:  from,
		RecipientID:  to,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Status:       domain.RequestPending,
	}
}

func TestAccessRequestRepository_CreateIfOpen(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessRequestRepository(setupTestDB(t))

	require.NoError(t, repo.CreateIfOpen(ctx, newRequest("r1", "alice", "bob", 1)))

	err := repo.CreateIfOpen(ctx, newRequest("r2", "bob", "alice", 2))
	assert.ErrorIs(t, err, common.ErrDuplicateRequest)

	ok, err := repo.Transition(ctx, "r1", domain.RequestPending, domain.RequestRejected, "", 3)
	require.NoError(t, err)
	require.True(t, ok)

	err = repo.CreateIfOpen(ctx, newRequest("r3", "alice", "bob", 4))
	assert.ErrorIs(t, err, common.ErrRequestClosed)
}

func TestAccessRequestRepository_PairKeyIsUnique(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(newRequest("r1", "alice", "bob", 1)).Error)

	err := db.Create(newRequest("r2", "bob", "alice", 2)).Error
	require.Error(t, err)
	assert.True(t, isDuplicateKey(err))

	var count int64
	require.NoError(t, db.Model(&domain.AccessRequest{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAccessRequestRepository_CreateIfOpenLosesRace(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	// another writer inserts the pair between the lookup and the insert
	inserted := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:concurrent_insert", func(tx *gorm.DB) {
		if inserted || tx.Statement.Table != "chat_access_requests" {
			return
		}
		inserted = true
		_, err := tx.Statement.ConnPool.ExecContext(ctx,
			"INSERT INTO chat_access_requests (id, pair_key, status) VALUES (?, ?, ?)",
			"other", domain.PairKey("alice", "bob"), domain.RequestPending)
		require.NoError(t, err)
	}))

	repo := NewAccessRequestRepository(db)
	err := repo.CreateIfOpen(ctx, newRequest("r1", "alice", "bob", 1))
	assert.ErrorIs(t, err, common.ErrDuplicateRequest)
	assert.True(t, inserted)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, isDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicateKey(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.False(t, isDuplicateKey(errors.New("connection refused")))
}

func TestAccessRequestRepository_TransitionGuardsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessRequestRepository(setupTestDB(t))
	require.NoError(t, repo.CreateIfOpen(ctx, newRequest("r1", "alice", "bob", 1)))

	ok, err := repo.Transition(ctx, "r1", domain.RequestPending, domain.RequestAccepted, "", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, "r1", domain.RequestPending, domain.RequestRejected, "", 3)
	require.NoError(t, err)
	assert.False(t, ok, "stale from-status must not win")

	ok, err = repo.Transition(ctx, "r1", domain.RequestAccepted, domain.RequestRejected, "alice", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	req, err := repo.FindLatestByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, domain.RequestRejected, req.Status)
	assert.Equal(t, "alice", req.RevokedBy)
	assert.Equal(t, int64(4), req.UpdatedAt)
}

func TestAccessRequestRepository_ListForUser(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessRequestRepository(setupTestDB(t))
	require.NoError(t, repo.CreateIfOpen(ctx, newRequest("r1", "alice", "bob", 1)))
	require.NoError(t, repo.CreateIfOpen(ctx, newRequest("r2", "carol", "alice", 2)))
	require.NoError(t, repo.CreateIfOpen(ctx, newRequest("r3", "bob", "carol", 3)))

	reqs, err := repo.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "r2", reqs[0].ID)
	assert.Equal(t, "r1", reqs[1].ID)

	none, err := repo.FindLatestByPair(ctx, "alice", "dave")
	require.NoError(t, err)
	assert.Nil(t, none)
}
