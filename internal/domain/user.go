package domain

import "strings"

// User is an authenticated identity. Deleted identities stay referenceable by past messages.
type User struct {
	ID          string `gorm:"column:id;primaryKey;size:128" json:"id"`
	DisplayName string `gorm:"column:display_name;size:100;index" json:"display_name"`
	Email       string `gorm:"column:email;size:255" json:"email,omitempty"`
	PhotoURL    string `gorm:"column:photo_url;size:500" json:"photo_url,omitempty"`
	Provider    string `gorm:"column:provider;size:50" json:"provider,omitempty"`
	LastSeenAt  int64  `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt   int64  `gorm:"column:created_at" json:"created_at"`
	IsDeleted   bool   `gorm:"column:is_deleted;index" json:"is_deleted"`
}

func (User) TableName() string {
	return "chat_users"
}

// Identity is what the external identity provider vouches for on every request.
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
	PhotoURL    string
	Provider    string
}

// FallbackDisplayName picks the name to store when the provider gave none:
// the email local part, then "User".
func FallbackDisplayName(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// UpdateProfileRequest profile edit payload
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" form:"display_name" binding:"required,notblank,max=100"`
}

// ContactResponse a sidebar entry
type ContactResponse struct {
	ID            string           `json:"id"`
	DisplayName   string           `json:"display_name"`
	PhotoURL      string           `json:"photo_url,omitempty"`
	LastSeenAt    int64            `json:"last_seen_at"`
	Presence      string           `json:"presence"`
	Online        bool             `json:"online"`
	IsDeleted     bool             `json:"is_deleted"`
	RequestStatus string           `json:"request_status,omitempty"`
	LatestMessage *MessageResponse `json:"latest_message,omitempty"`
}
