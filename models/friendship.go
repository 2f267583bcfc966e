package models

import "time"

const (
	FriendshipPending  = "PENDING"
	FriendshipAccepted = "ACCEPTED"
	FriendshipRejected = "REJECTED"
	// FriendshipNone is reported by status reads when no row exists.
	FriendshipNone = "NONE"
)

type Friendship struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Counterpart returns the other side of the friendship as seen by userID.
func (f *Friendship) Counterpart(userID string) string {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}

func (f *Friendship) Involves(userID string) bool {
	return f.SenderID == userID || f.ReceiverID == userID
}

// OrderedPair returns the canonical (low, high) ordering of two user ids.
func OrderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

type FriendWithUser struct {
	Friendship
	Friend           UserResponse `json:"friend"`
	IsOnline         bool         `json:"is_online"`
	FriendLastActive *time.Time   `json:"-"`
}

// FriendshipState is the viewer-relative status of a pair.
type FriendshipState struct {
	FriendshipID string    `json:"friendship_id,omitempty"`
	Status       string    `json:"status"`
	IsIncoming   bool      `json:"is_incoming"`
	CachedAt     time.Time `json:"cached_at"`
}
