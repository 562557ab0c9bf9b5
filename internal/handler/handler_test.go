package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock AccessService ---

type mockAccessService struct {
	mock.Mock
}

func (m *mockAccessService) request(args mock.Arguments) (*domain.AccessRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessRequest), args.Error(1)
}

func (m *mockAccessService) SendRequest(ctx context.Context, fromID, toID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(fromID, toID))
}

func (m *mockAccessService) Accept(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(actorID, requestID))
}

func (m *mockAccessService) Reject(ctx context.Context, actorID, requestID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(actorID, requestID))
}

func (m *mockAccessService) Revoke(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(byID, otherID))
}

func (m *mockAccessService) Grant(ctx context.Context, byID, otherID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(byID, otherID))
}

func (m *mockAccessService) CanCommunicate(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(a, b)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccessService) Status(ctx context.Context, selfID, otherID string) (*domain.AccessRequest, error) {
	return m.request(m.Called(selfID, otherID))
}

func (m *mockAccessService) List(ctx context.Context, selfID string) ([]domain.AccessRequest, error) {
	args := m.Called(selfID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AccessRequest), args.Error(1)
}

func (m *mockAccessService) PendingCount(ctx context.Context, selfID string) (int, error) {
	args := m.Called(selfID)
	return args.Int(0), args.Error(1)
}

func (m *mockAccessService) SubscribeAll(ctx context.Context, selfID string) *realtime.Subscription[domain.AccessRequest] {
	return nil
}

// --- Mock MessageService ---

type mockMessageService struct {
	mock.Mock
}

func (m *mockMessageService) Send(ctx context.Context, authorID string, req *domain.SendMessageRequest, image *service.ImageUpload) (*domain.Message, error) {
	var imageName string
	if image != nil {
		body, _ := io.ReadAll(image.Body)
		imageName = image.Filename + ":" + string(body)
	}
	args := m.Called(authorID, req.ToUserID, req.Text, imageName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageService) Edit(ctx context.Context, authorID, messageID, text string) (*domain.Message, error) {
	args := m.Called(authorID, messageID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageService) Delete(ctx context.Context, authorID, messageID string) error {
	return m.Called(authorID, messageID).Error(0)
}

func (m *mockMessageService) List(ctx context.Context, selfID string, key domain.ConversationKey) ([]domain.Message, error) {
	args := m.Called(selfID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *mockMessageService) LatestByConversation(ctx context.Context, selfID string) (map[domain.ConversationKey]domain.Message, error) {
	return nil, nil
}

func (m *mockMessageService) SubscribeConversation(ctx context.Context, selfID string, key domain.ConversationKey) *realtime.Subscription[domain.Message] {
	return nil
}

func (m *mockMessageService) SubscribeInbound(ctx context.Context, selfID string, since int64) *realtime.Subscription[domain.Message] {
	return nil
}

// --- Mock UserService ---

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) user(args mock.Arguments) (*domain.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserService) EnsureProfile(ctx context.Context, id domain.Identity) (*domain.User, error) {
	return m.user(m.Called(id.UserID))
}

func (m *mockUserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	return m.user(m.Called(userID))
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID, displayName string, photo *service.ImageUpload) (*domain.User, error) {
	var photoName string
	if photo != nil {
		photoName = photo.Filename
	}
	return m.user(m.Called(userID, displayName, photoName))
}

func (m *mockUserService) DeleteAccount(ctx context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *mockUserService) Contacts(ctx context.Context, selfID string) ([]domain.ContactResponse, error) {
	args := m.Called(selfID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ContactResponse), args.Error(1)
}

func (m *mockUserService) Search(ctx context.Context, selfID, query string) ([]domain.ContactResponse, error) {
	args := m.Called(selfID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ContactResponse), args.Error(1)
}

func (m *mockUserService) ToContact(user *domain.User) domain.ContactResponse {
	return domain.ContactResponse{ID: user.ID, DisplayName: user.DisplayName}
}

// --- Mock PresenceService ---

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) Touch(ctx context.Context, selfID string) error {
	return m.Called(selfID).Error(0)
}

// --- helpers ---

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Meta  *common.Meta      `json:"meta"`
	Error *common.ErrorInfo `json:"error"`
}

func serve(t *testing.T, method, path, route string, h gin.HandlerFunc, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.Handle(method, route, h)

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func jsonBody(v interface{}) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename, contentType, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// --- access ---

func TestAccessHandler_SendRequest(t *testing.T) {
	svc := &mockAccessService{}
	h := NewAccessHandler(svc)
	svc.On("SendRequest", "alice", "bob").Return(&domain.AccessRequest{ID: "r1", Status: domain.RequestPending}, nil).Once()
	svc.On("SendRequest", "alice", "carol").Return(nil, common.ErrDuplicateRequest).Once()

	w, env := serve(t, http.MethodPost, "/requests", "/requests", h.SendRequest, jsonBody(gin.H{"to_user_id": "bob"}), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)
	var created domain.AccessRequestResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "r1", created.ID)

	w, env = serve(t, http.MethodPost, "/requests", "/requests", h.SendRequest, jsonBody(gin.H{"to_user_id": "carol"}), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	w, _ = serve(t, http.MethodPost, "/requests", "/requests", h.SendRequest, jsonBody(gin.H{"to_user_id": "   "}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestAccessHandler_ListRequestsCountsPending(t *testing.T) {
	svc := &mockAccessService{}
	h := NewAccessHandler(svc)
	svc.On("List", "alice").Return([]domain.AccessRequest{
		{ID: "1", RecipientID: "alice", Status: domain.RequestPending},
		{ID: "2", RecipientID: "bob", Status: domain.RequestPending},
		{ID: "3", RecipientID: "alice", Status: domain.RequestAccepted},
	}, nil)

	w, env := serve(t, http.MethodGet, "/requests", "/requests", h.ListRequests, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.PendingCount)
	assert.Equal(t, int64(3), env.Meta.Total)
}

func TestAccessHandler_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		path   string
		method string
		handle func(h *AccessHandler) gin.HandlerFunc
		arg    string
		err    error
		status int
	}{
		{"accept", "/requests/:id/accept", "/requests/r1/accept", "Accept", func(h *AccessHandler) gin.HandlerFunc { return h.Accept }, "r1", nil, http.StatusOK},
		{"accept by requester", "/requests/:id/accept", "/requests/r1/accept", "Accept", func(h *AccessHandler) gin.HandlerFunc { return h.Accept }, "r1", common.ErrUnauthorized, http.StatusForbidden},
		{"reject accepted", "/requests/:id/reject", "/requests/r1/reject", "Reject", func(h *AccessHandler) gin.HandlerFunc { return h.Reject }, "r1", common.ErrInvalidTransition, http.StatusConflict},
		{"revoke", "/access/:user_id/revoke", "/access/bob/revoke", "Revoke", func(h *AccessHandler) gin.HandlerFunc { return h.Revoke }, "bob", nil, http.StatusOK},
		{"revoke nothing", "/access/:user_id/revoke", "/access/bob/revoke", "Revoke", func(h *AccessHandler) gin.HandlerFunc { return h.Revoke }, "bob", common.ErrNoActiveAccess, http.StatusForbidden},
		{"grant missing", "/access/:user_id/grant", "/access/bob/grant", "Grant", func(h *AccessHandler) gin.HandlerFunc { return h.Grant }, "bob", common.ErrRequestNotFound, http.StatusNotFound},
		{"store failure", "/access/:user_id/grant", "/access/bob/grant", "Grant", func(h *AccessHandler) gin.HandlerFunc { return h.Grant }, "bob", errors.New("db gone"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAccessService{}
			if tt.err != nil {
				svc.On(tt.method, "alice", tt.arg).Return(nil, tt.err)
			} else {
				svc.On(tt.method, "alice", tt.arg).Return(&domain.AccessRequest{ID: "r1"}, nil)
			}

			w, env := serve(t, http.MethodPost, tt.path, tt.route, tt.handle(NewAccessHandler(svc)), nil, "")
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", env.Error.Message)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestAccessHandler_Status(t *testing.T) {
	svc := &mockAccessService{}
	h := NewAccessHandler(svc)
	svc.On("Status", "alice", "bob").Return(&domain.AccessRequest{ID: "r1", Status: domain.RequestRejected, RevokedBy: "alice"}, nil)
	svc.On("Status", "alice", "carol").Return(nil, nil)

	_, env := serve(t, http.MethodGet, "/access/bob", "/access/:user_id", h.Status, nil, "")
	var st domain.AccessStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.CanCommunicate)
	assert.True(t, st.RevokedByMe)
	require.NotNil(t, st.Request)

	_, env = serve(t, http.MethodGet, "/access/carol", "/access/:user_id", h.Status, nil, "")
	st = domain.AccessStatusResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "carol", st.UserID)
	assert.Nil(t, st.Request)
}

// --- messages ---

func TestMessageHandler_SendJSON(t *testing.T) {
	svc := &mockMessageService{}
	h := NewMessageHandler(svc)
	svc.On("Send", "alice", "bob", "hi", "").Return(&domain.Message{
		ID: "m1", ContentKind: domain.ContentText, ContentBody: "hi", Visibility: domain.VisibilityPrivate,
	}, nil).Once()
	svc.On("Send", "alice", "carol", "hi", "").Return(nil, common.ErrNoActiveAccess).Once()

	w, env := serve(t, http.MethodPost, "/messages", "/messages", h.Send, jsonBody(gin.H{"to_user_id": "bob", "text": "hi"}), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)
	var msg domain.MessageResponse
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, domain.Text("hi"), msg.Content)

	w, _ = serve(t, http.MethodPost, "/messages", "/messages", h.Send, jsonBody(gin.H{"to_user_id": "carol", "text": "hi"}), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertExpectations(t)
}

func TestMessageHandler_SendMultipartImage(t *testing.T) {
	svc := &mockMessageService{}
	h := NewMessageHandler(svc)
	svc.On("Send", "alice", "", "", "cat.png:PNG").Return(&domain.Message{
		ID: "m1", ContentKind: domain.ContentImage, ContentBody: "https://img/cat.png",
	}, nil).Once()

	body, ct := multipartBody(t, nil, "image", "cat.png", "image/png", "PNG")
	w, _ := serve(t, http.MethodPost, "/messages", "/messages", h.Send, body, ct)
	assert.Equal(t, http.StatusCreated, w.Code)

	body, ct = multipartBody(t, map[string]string{"text": "x"}, "image", "doc.pdf", "application/pdf", "PDF")
	w, _ = serve(t, http.MethodPost, "/messages", "/messages", h.Send, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestMessageHandler_ListDefaultsToGlobal(t *testing.T) {
	svc := &mockMessageService{}
	h := NewMessageHandler(svc)
	svc.On("List", "alice", domain.Global).Return([]domain.Message{{ID: "m1"}}, nil).Once()
	svc.On("List", "alice", domain.Peer("bob")).Return([]domain.Message{}, nil).Once()

	_, env := serve(t, http.MethodGet, "/messages", "/messages", h.List, nil, "")
	assert.Equal(t, "global", env.Meta.Conversation)

	_, env = serve(t, http.MethodGet, "/messages?conversation=bob", "/messages", h.List, nil, "")
	assert.Equal(t, "bob", env.Meta.Conversation)
	svc.AssertExpectations(t)
}

func TestMessageHandler_EditAndDelete(t *testing.T) {
	svc := &mockMessageService{}
	h := NewMessageHandler(svc)
	svc.On("Edit", "alice", "m1", "fixed").Return(nil, common.ErrEditWindowExpired).Once()
	svc.On("Delete", "alice", "m1").Return(nil).Once()
	svc.On("Delete", "alice", "m2").Return(common.ErrForbidden).Once()

	w, _ := serve(t, http.MethodPut, "/messages/m1", "/messages/:id", h.Edit, jsonBody(gin.H{"text": "fixed"}), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = serve(t, http.MethodPut, "/messages/m1", "/messages/:id", h.Edit, jsonBody(gin.H{"text": " "}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = serve(t, http.MethodDelete, "/messages/m1", "/messages/:id", h.Delete, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = serve(t, http.MethodDelete, "/messages/m2", "/messages/:id", h.Delete, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertExpectations(t)
}

// --- users ---

func TestUserHandler_SessionRejectsDeletedAccount(t *testing.T) {
	users := &mockUserService{}
	h := NewUserHandler(users, &mockPresence{})
	users.On("EnsureProfile", "alice").Return(nil, common.ErrForbidden).Once()

	w, env := serve(t, http.MethodPost, "/session", "/session", h.Session, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestUserHandler_UpdateProfile(t *testing.T) {
	users := &mockUserService{}
	h := NewUserHandler(users, &mockPresence{})
	users.On("UpdateProfile", "alice", "Alice B", "me.jpg").Return(&domain.User{ID: "alice", DisplayName: "Alice B"}, nil).Once()
	users.On("UpdateProfile", "alice", "Al", "").Return(&domain.User{ID: "alice", DisplayName: "Al"}, nil).Once()

	body, ct := multipartBody(t, map[string]string{"display_name": "Alice B"}, "photo", "me.jpg", "image/jpeg", "JPG")
	w, env := serve(t, http.MethodPut, "/me/profile", "/me/profile", h.UpdateProfile, body, ct)
	assert.Equal(t, http.StatusOK, w.Code)
	var contact domain.ContactResponse
	require.NoError(t, json.Unmarshal(env.Data, &contact))
	assert.Equal(t, "Alice B", contact.DisplayName)

	w, _ = serve(t, http.MethodPut, "/me/profile", "/me/profile", h.UpdateProfile, jsonBody(gin.H{"display_name": "Al"}), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = serve(t, http.MethodPut, "/me/profile", "/me/profile", h.UpdateProfile, jsonBody(gin.H{"display_name": ""}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	users.AssertExpectations(t)
}

func TestUserHandler_SearchAndGet(t *testing.T) {
	users := &mockUserService{}
	h := NewUserHandler(users, &mockPresence{})
	users.On("Search", "alice", "bo").Return([]domain.ContactResponse{{ID: "bob"}}, nil).Once()
	users.On("Get", "zed").Return(nil, common.ErrUserNotFound).Once()

	_, env := serve(t, http.MethodGet, "/users/search?q=bo", "/users/search", h.Search, nil, "")
	assert.Equal(t, int64(1), env.Meta.Total)

	w, _ := serve(t, http.MethodGet, "/users/zed", "/users/:id", h.Get, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	users.AssertExpectations(t)
}

func TestUserHandler_DeleteAndTouch(t *testing.T) {
	users := &mockUserService{}
	presence := &mockPresence{}
	h := NewUserHandler(users, presence)
	users.On("DeleteAccount", "alice").Return(nil).Once()
	presence.On("Touch", "alice").Return(nil).Once()

	w, _ := serve(t, http.MethodDelete, "/me", "/me", h.DeleteAccount, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = serve(t, http.MethodPost, "/me/presence", "/me/presence", h.Touch, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	users.AssertExpectations(t)
	presence.AssertExpectations(t)
}

// --- websocket ---

func TestWSHandler_CheckOrigin(t *testing.T) {
	h := NewWSHandler(nil, nil, nil, nil, nil, session.Options{}, "https://chat.example, https://admin.example")

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://chat.example", true},
		{"https://admin.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, h.checkOrigin(r), tt.origin)
	}

	open := NewWSHandler(nil, nil, nil, nil, nil, session.Options{}, "*")
	r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	r.Header.Set("Origin", "https://anything.example")
	assert.True(t, open.checkOrigin(r))
}
