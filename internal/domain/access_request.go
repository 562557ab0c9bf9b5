package domain

// RequestStatus lifecycle state of an AccessRequest
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// AccessRequest is a chat-access grant between two identities.
// At most one record exists per unordered pair; pair_key is unique.
type AccessRequest struct {
	ID            string        `gorm:"column:id;primaryKey;size:64" json:"id"`
	PairKey       string        `gorm:"column:pair_key;size:260;uniqueIndex:uniq_chat_access_requests_pair" json:"-"`
	ParticipantA  string        `gorm:"column:participant_a;size:128;index" json:"-"`
	ParticipantB  string        `gorm:"column:participant_b;size:128;index" json:"-"`
	RequesterID   string        `gorm:"column:requester_id;size:128" json:"requester_id"`
	RequesterName string        `gorm:"column:requester_name;size:100" json:"requester_name"`
	RecipientID   string        `gorm:"column:recipient_id;size:128;index" json:"recipient_id"`
	CreatedAt     int64         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     int64         `gorm:"column:updated_at" json:"updated_at"`
	Status        RequestStatus `gorm:"column:status;size:16;index" json:"status"`
	RevokedBy     string        `gorm:"column:revoked_by;size:128" json:"revoked_by,omitempty"`
}

func (AccessRequest) TableName() string {
	return "chat_access_requests"
}

// IsActive reports whether the request is pending or accepted
func (r *AccessRequest) IsActive() bool {
	return r.Status == RequestPending || r.Status == RequestAccepted
}

// Participants returns the sorted pair
func (r *AccessRequest) Participants() []string {
	return []string{r.ParticipantA, r.ParticipantB}
}

// HasParticipant reports whether id is one of the pair
func (r *AccessRequest) HasParticipant(id string) bool {
	return r.ParticipantA == id || r.ParticipantB == id
}

// Counterpart returns the other identity of the pair
func (r *AccessRequest) Counterpart(selfID string) string {
	if r.ParticipantA == selfID {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// ClosedBy returns the identity that closed a rejected request: the revoker when the
// request was revoked after acceptance, otherwise the recipient who declined it.
func (r *AccessRequest) ClosedBy() string {
	if r.Status != RequestRejected {
		return ""
	}
	if r.RevokedBy != "" {
		return r.RevokedBy
	}
	return r.RecipientID
}

// LatestForPair picks the most recent request between a and b from a snapshot.
func LatestForPair(reqs []AccessRequest, a, b string) *AccessRequest {
	key := PairKey(a, b)
	var latest *AccessRequest
	for i := range reqs {
		if reqs[i].PairKey != key {
			continue
		}
		if latest == nil || reqs[i].CreatedAt >= latest.CreatedAt {
			latest = &reqs[i]
		}
	}
	return latest
}

// CountPendingFor counts pending requests addressed to selfID
func CountPendingFor(reqs []AccessRequest, selfID string) int {
	n := 0
	for i := range reqs {
		if reqs[i].Status == RequestPending && reqs[i].RecipientID == selfID {
			n++
		}
	}
	return n
}

// SendChatRequest payload
type SendChatRequest struct {
	ToUserID string `json:"to_user_id" binding:"required,notblank,max=128"`
}

// AccessRequestResponse API view of a request
type AccessRequestResponse struct {
	ID            string        `json:"id"`
	Participants  []string      `json:"participants"`
	RequesterID   string        `json:"requester_id"`
	RequesterName string        `json:"requester_name"`
	RecipientID   string        `json:"recipient_id"`
	CreatedAt     int64         `json:"created_at"`
	Status        RequestStatus `json:"status"`
	RevokedBy     string        `json:"revoked_by,omitempty"`
}

// ToResponse converts AccessRequest to its API view
func (r *AccessRequest) ToResponse() *AccessRequestResponse {
	return &AccessRequestResponse{
		ID:            r.ID,
		Participants:  r.Participants(),
		RequesterID:   r.RequesterID,
		RequesterName: r.RequesterName,
		RecipientID:   r.RecipientID,
		CreatedAt:     r.CreatedAt,
		Status:        r.Status,
		RevokedBy:     r.RevokedBy,
	}
}

// AccessStatusResponse whether two identities may chat right now
type AccessStatusResponse struct {
	UserID         string                 `json:"user_id"`
	CanCommunicate bool                   `json:"can_communicate"`
	RevokedByMe    bool                   `json:"revoked_by_me"`
	Request        *AccessRequestResponse `json:"request,omitempty"`
}
