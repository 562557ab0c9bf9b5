package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- Mock Uploader ---

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(filename, contentType)
	return args.String(0), args.Error(1)
}

// --- Mock ContactSearch ---

type mockContactSearch struct {
	mock.Mock
}

func (m *mockContactSearch) Index(ctx context.Context, user *domain.User) error {
	return m.Called(user.ID).Error(0)
}

func (m *mockContactSearch) Remove(ctx context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *mockContactSearch) Search(ctx context.Context, query string, limit int) ([]string, error) {
	args := m.Called(query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// --- Mock MemberNotifier ---

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) IsOnline(memberID string) bool {
	return m.Called(memberID).Bool(0)
}

func (m *mockMembers) Notify(memberID, eventType string, payload interface{}) {
	m.Called(memberID, eventType, payload)
}

// fixture wires the services over an in-memory database
type fixture struct {
	db       *gorm.DB
	broker   *realtime.Broker
	users    repository.UserRepository
	access   *accessService
	messages *messageService
	presence *presenceService
	userSvc  *userService
	uploader *mockUploader
	search   *mockContactSearch
	members  *mockMembers
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Message{}, &domain.AccessRequest{}))

	f := &fixture{
		db:       db,
		broker:   realtime.NewBroker(nil),
		users:    repository.NewUserRepository(db),
		uploader: &mockUploader{},
		search:   &mockContactSearch{},
		members:  &mockMembers{},
		clock:    time.Date(2024, 7, 22, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }

	f.access = NewAccessService(repository.NewAccessRequestRepository(db), f.users, f.broker).(*accessService)
	f.access.now = now
	f.messages = NewMessageService(repository.NewMessageRepository(db), f.users, f.access, f.uploader, f.broker, 0).(*messageService)
	f.messages.now = now
	f.presence = NewPresenceService(f.users, f.broker).(*presenceService)
	f.presence.now = now
	f.userSvc = NewUserService(f.users, f.messages, f.access, f.presence, f.broker, UserServiceDeps{
		Uploader: f.uploader,
		Search:   f.search,
		Members:  f.members,
	}).(*userService)
	f.userSvc.now = now
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) addUser(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.users.Upsert(context.Background(), &domain.User{
		ID:          id,
		DisplayName: name,
		LastSeenAt:  f.clock.UnixMilli(),
		CreatedAt:   f.clock.UnixMilli(),
	}))
}

// connect runs send + accept so the pair may chat
func (f *fixture) connect(t *testing.T, from, to string) *domain.AccessRequest {
	t.Helper()
	ctx := context.Background()
	req, err := f.access.SendRequest(ctx, from, to)
	require.NoError(t, err)
	f.advance(time.Second)
	req, err = f.access.Accept(ctx, to, req.ID)
	require.NoError(t, err)
	f.advance(time.Second)
	return req
}
