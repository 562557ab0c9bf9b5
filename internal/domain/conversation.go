package domain

import (
	"sort"
	"strings"
)

// ConversationKey identifies a conversation: Global or a counterpart identity id.
// It is the unit of muting, unread tracking and message filtering.
type ConversationKey string

// Global is the shared room every identity can read and write.
const Global ConversationKey = "global"

// Peer returns the conversation key for a private thread with userID.
func Peer(userID string) ConversationKey {
	if userID == "" {
		return Global
	}
	return ConversationKey(userID)
}

// IsGlobal reports whether the key addresses the global room
func (k ConversationKey) IsGlobal() bool {
	return k == "" || k == Global
}

// PeerID returns the counterpart identity id, or "" for Global.
func (k ConversationKey) PeerID() string {
	if k.IsGlobal() {
		return ""
	}
	return string(k)
}

func (k ConversationKey) String() string {
	if k == "" {
		return string(Global)
	}
	return string(k)
}

// ParseConversationKey accepts "", "global" or an identity id.
func ParseConversationKey(s string) ConversationKey {
	if s == "" || s == string(Global) {
		return Global
	}
	return ConversationKey(s)
}

// pairSeparator joins the two ids of a PairKey
const pairSeparator = ":"

// MaxIdentityIDLength matches the width of the identity id columns
const MaxIdentityIDLength = 128

// ValidIdentityID reports whether id can name an identity. The id must not
// collide with Global as a conversation key and must not contain the pair
// separator, or two different pairs would share a PairKey.
func ValidIdentityID(id string) bool {
	if strings.TrimSpace(id) == "" || len(id) > MaxIdentityIDLength {
		return false
	}
	return id != string(Global) && !strings.Contains(id, pairSeparator)
}

// Pair returns the two identities sorted, so (a,b) and (b,a) map to the same pair.
func Pair(a, b string) (string, string) {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0], ids[1]
}

// PairKey is the unordered-pair key shared by messages and access requests.
func PairKey(a, b string) string {
	first, second := Pair(a, b)
	return first + pairSeparator + second
}

// FilterConversation returns the messages of conversation key as seen by selfID,
// ordered by createdAt. Equal timestamps keep their arrival order.
func FilterConversation(selfID string, all []Message, key ConversationKey) []Message {
	out := make([]Message, 0, len(all))
	peer := key.PeerID()
	for i := range all {
		m := &all[i]
		if key.IsGlobal() {
			if m.Visibility == VisibilityGlobal {
				out = append(out, *m)
			}
			continue
		}
		if m.HasParticipant(selfID) && m.HasParticipant(peer) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}
