package domain

import (
	"strings"
	"time"
)

// Visibility of a message
type Visibility string

const (
	VisibilityGlobal  Visibility = "global"
	VisibilityPrivate Visibility = "private"
)

// MessageStatus optimistic-send marker
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
)

// ContentKind discriminates Content
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// Content is either Text(body) or Image(url). The kind is fixed when the message is created.
type Content struct {
	Kind ContentKind `json:"kind"`
	Body string      `json:"body"`
}

// Text builds a text content
func Text(s string) Content {
	return Content{Kind: ContentText, Body: s}
}

// Image builds an image content pointing at a hosted URL
func Image(url string) Content {
	return Content{Kind: ContentImage, Body: url}
}

// IsImage reports whether the content is an image attachment
func (c Content) IsImage() bool {
	return c.Kind == ContentImage
}

// ClassifyText decides the content of a typed message: text that starts with an
// http(s) URL is an image attachment, anything else is plain text.
func ClassifyText(s string) Content {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Image(trimmed)
	}
	return Text(s)
}

// Message is a chat message in the global room or in a private pair thread.
type Message struct {
	ID           string        `gorm:"column:id;primaryKey;size:64" json:"id"`
	ContentKind  ContentKind   `gorm:"column:content_kind;size:16" json:"content_kind"`
	ContentBody  string        `gorm:"column:content_body;type:text" json:"content_body"`
	AuthorID     string        `gorm:"column:author_id;size:128;index" json:"author_id"`
	AuthorName   string        `gorm:"column:author_name;size:100" json:"author_name"`
	CreatedAt    int64         `gorm:"column:created_at;index" json:"created_at"`
	Visibility   Visibility    `gorm:"column:visibility;size:16;index" json:"visibility"`
	RecipientID  string        `gorm:"column:recipient_id;size:128;index" json:"recipient_id,omitempty"`
	ParticipantA string        `gorm:"column:participant_a;size:128" json:"participant_a,omitempty"`
	ParticipantB string        `gorm:"column:participant_b;size:128" json:"participant_b,omitempty"`
	PairKey      string        `gorm:"column:pair_key;size:260;index" json:"pair_key,omitempty"`
	Status       MessageStatus `gorm:"column:status;size:16" json:"status"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// Content returns the tagged content of the message
func (m *Message) Content() Content {
	return Content{Kind: m.ContentKind, Body: m.ContentBody}
}

// SetContent replaces the content in place
func (m *Message) SetContent(c Content) {
	m.ContentKind = c.Kind
	m.ContentBody = c.Body
}

// IsPrivate reports whether the message belongs to a pair thread
func (m *Message) IsPrivate() bool {
	return m.Visibility == VisibilityPrivate
}

// Participants returns the pair of a private message, nil for global ones
func (m *Message) Participants() []string {
	if !m.IsPrivate() {
		return nil
	}
	return []string{m.ParticipantA, m.ParticipantB}
}

// HasParticipant reports whether id is one of the pair
func (m *Message) HasParticipant(id string) bool {
	return m.IsPrivate() && (m.ParticipantA == id || m.ParticipantB == id)
}

// SetParticipants stores the pair sorted. The author must be one of them.
func (m *Message) SetParticipants(a, b string) {
	m.ParticipantA, m.ParticipantB = Pair(a, b)
	m.PairKey = PairKey(a, b)
}

// ConversationFor returns the conversation this message belongs to, seen from selfID.
func (m *Message) ConversationFor(selfID string) ConversationKey {
	if !m.IsPrivate() {
		return Global
	}
	if m.ParticipantA == selfID {
		return Peer(m.ParticipantB)
	}
	return Peer(m.ParticipantA)
}

// EditableAt reports whether the message is still inside its edit window at now.
func (m *Message) EditableAt(now time.Time, window time.Duration) bool {
	return now.UnixMilli()-m.CreatedAt <= window.Milliseconds()
}

// SendMessageRequest represents a send message request
type SendMessageRequest struct {
	ID        string `json:"id" form:"id" binding:"omitempty,max=64"`
	ToUserID  string `json:"to_user_id" form:"to_user_id" binding:"omitempty,max=128"`
	Text      string `json:"text" form:"text" binding:"max=4000"`
	CreatedAt int64  `json:"created_at" form:"created_at"`
}

// EditMessageRequest represents an edit request
type EditMessageRequest struct {
	Text string `json:"text" binding:"required,notblank,max=4000"`
}

// MessageResponse represents a message in API responses
type MessageResponse struct {
	ID           string        `json:"id"`
	Content      Content       `json:"content"`
	AuthorID     string        `json:"author_id"`
	AuthorName   string        `json:"author_name"`
	CreatedAt    int64         `json:"created_at"`
	Visibility   Visibility    `json:"visibility"`
	RecipientID  string        `json:"recipient_id,omitempty"`
	Participants []string      `json:"participants,omitempty"`
	Status       MessageStatus `json:"status"`
}

// ToResponse converts Message to MessageResponse
func (m *Message) ToResponse() *MessageResponse {
	return &MessageResponse{
		ID:           m.ID,
		Content:      m.Content(),
		AuthorID:     m.AuthorID,
		AuthorName:   m.AuthorName,
		CreatedAt:    m.CreatedAt,
		Visibility:   m.Visibility,
		RecipientID:  m.RecipientID,
		Participants: m.Participants(),
		Status:       m.Status,
	}
}

// ToResponses converts a slice of messages
func ToResponses(msgs []Message) []*MessageResponse {
	out := make([]*MessageResponse, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].ToResponse()
	}
	return out
}
