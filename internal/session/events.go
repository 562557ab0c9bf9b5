package session

import "github.com/damoang/angple-chat/internal/domain"

// Command types accepted from the client
const (
	CommandSelect = "select"
	CommandMute   = "mute"
	CommandSend   = "send"
	CommandPing   = "ping"
)

// Event types pushed to the client
const (
	EventMessages       = "messages"
	EventUnread         = "unread"
	EventChime          = "chime"
	EventRequests       = "requests"
	EventAccess         = "access"
	EventMuted          = "muted"
	EventError          = "error"
	EventPong           = "pong"
	EventAccountDeleted = "account_deleted"
)

// Command is a client intent
type Command struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation,omitempty"`
	ToUserID     string `json:"to_user_id,omitempty"`
	Text         string `json:"text,omitempty"`
	ID           string `json:"id,omitempty"`
}

// Event is a server push
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type MessagesPayload struct {
	Conversation domain.ConversationKey    `json:"conversation"`
	Messages     []*domain.MessageResponse `json:"messages"`
	Stale        bool                      `json:"stale"`
}

type UnreadPayload struct {
	Conversations []domain.ConversationKey `json:"conversations"`
}

type ConversationPayload struct {
	Conversation domain.ConversationKey `json:"conversation"`
}

type RequestsPayload struct {
	Requests     []*domain.AccessRequestResponse `json:"requests"`
	PendingCount int                             `json:"pending_count"`
}

type AccessPayload struct {
	Conversation   domain.ConversationKey `json:"conversation"`
	CanCommunicate bool                   `json:"can_communicate"`
	RevokedByMe    bool                   `json:"revoked_by_me"`
}

type MutedPayload struct {
	Conversations []domain.ConversationKey `json:"conversations"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
