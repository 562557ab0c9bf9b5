package session

import (
	"sort"

	"github.com/damoang/angple-chat/internal/domain"
)

// Alert is the outcome of one qualifying record
type Alert struct {
	Conversation domain.ConversationKey
	Unread       bool
	Chime        bool
}

// Reconciler decides which incoming records mark a conversation unread and which
// ring the chime. Records created at or before the watermark are backlog and never alert.
// It is owned by a single session loop and is not safe for concurrent use.
type Reconciler struct {
	selfID    string
	watermark int64
	active    domain.ConversationKey

	unread map[domain.ConversationKey]bool
	muted  map[domain.ConversationKey]bool

	seenMessages map[string]struct{}
	seenRequests map[string]struct{}
}

// NewReconciler creates a reconciler with the mount watermark and persisted mute set
func NewReconciler(selfID string, watermark int64, muted []domain.ConversationKey) *Reconciler {
	r := &Reconciler{
		selfID:       selfID,
		watermark:    watermark,
		active:       domain.Global,
		unread:       make(map[domain.ConversationKey]bool),
		muted:        make(map[domain.ConversationKey]bool),
		seenMessages: make(map[string]struct{}),
		seenRequests: make(map[string]struct{}),
	}
	for _, key := range muted {
		r.muted[key] = true
	}
	return r
}

// Watermark returns the mount watermark in epoch millis
func (r *Reconciler) Watermark() int64 {
	return r.watermark
}

// Active returns the conversation the user is looking at
func (r *Reconciler) Active() domain.ConversationKey {
	return r.active
}

// SetActive makes key the active conversation and clears its unread flag.
// It reports whether a flag was cleared.
func (r *Reconciler) SetActive(key domain.ConversationKey) bool {
	r.active = key
	if r.unread[key] {
		delete(r.unread, key)
		return true
	}
	return false
}

// ObserveMessages evaluates a full snapshot of the inbound stream
func (r *Reconciler) ObserveMessages(msgs []domain.Message) []Alert {
	seen := make(map[string]struct{}, len(msgs))
	var alerts []Alert
	for i := range msgs {
		m := &msgs[i]
		seen[m.ID] = struct{}{}
		if _, known := r.seenMessages[m.ID]; known {
			continue
		}
		if m.CreatedAt <= r.watermark || m.AuthorID == r.selfID {
			continue
		}
		if alert, ok := r.raise(m.ConversationFor(r.selfID)); ok {
			alerts = append(alerts, alert)
		}
	}
	r.seenMessages = seen
	return alerts
}

// ObserveRequests evaluates a full snapshot of the access-request stream. A new
// pending request addressed to self alerts on the requester's conversation.
func (r *Reconciler) ObserveRequests(reqs []domain.AccessRequest) []Alert {
	seen := make(map[string]struct{}, len(reqs))
	var alerts []Alert
	for i := range reqs {
		req := &reqs[i]
		seen[req.ID] = struct{}{}
		if _, known := r.seenRequests[req.ID]; known {
			continue
		}
		if req.CreatedAt <= r.watermark || req.RecipientID != r.selfID || req.Status != domain.RequestPending {
			continue
		}
		if alert, ok := r.raise(domain.Peer(req.RequesterID)); ok {
			alerts = append(alerts, alert)
		}
	}
	r.seenRequests = seen
	return alerts
}

// raise flags key unread and chimes unless muted. The active conversation never alerts.
func (r *Reconciler) raise(key domain.ConversationKey) (Alert, bool) {
	if key == r.active {
		return Alert{}, false
	}
	r.unread[key] = true
	return Alert{Conversation: key, Unread: true, Chime: !r.muted[key]}, true
}

// ToggleMute flips key in the mute set and reports whether it is now muted
func (r *Reconciler) ToggleMute(key domain.ConversationKey) bool {
	if r.muted[key] {
		delete(r.muted, key)
		return false
	}
	r.muted[key] = true
	return true
}

// IsMuted reports whether key is muted
func (r *Reconciler) IsMuted(key domain.ConversationKey) bool {
	return r.muted[key]
}

// IsUnread reports whether key carries the unread flag
func (r *Reconciler) IsUnread(key domain.ConversationKey) bool {
	return r.unread[key]
}

// Muted returns the mute set, sorted
func (r *Reconciler) Muted() []domain.ConversationKey {
	return sortedKeys(r.muted)
}

// Unread returns the unread conversations, sorted
func (r *Reconciler) Unread() []domain.ConversationKey {
	return sortedKeys(r.unread)
}

func sortedKeys(set map[domain.ConversationKey]bool) []domain.ConversationKey {
	keys := make([]domain.ConversationKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
