package domain

import (
	"time"
)

// Conversation is a private chat between exactly two users.
type Conversation struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Participants carries only the two member ids of a conversation.
type Participants struct {
	ConversationID string `json:"conversation_id"`
	User1ID        string `json:"user1_id"`
	User2ID        string `json:"user2_id"`
}

func (p Participants) Has(userID string) bool {
	return userID != "" && (p.User1ID == userID || p.User2ID == userID)
}

// Peer returns the other participant. Callers must check Has first.
func (p Participants) Peer(userID string) string {
	if p.User1ID == userID {
		return p.User2ID
	}
	return p.User1ID
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID          string     `json:"id"`
	PeerID      string     `json:"peer_id"`
	PeerName    string     `json:"peer_name"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PeerSeenAt  *time.Time `json:"peer_last_seen_at,omitempty"`
}

// Message belongs to one conversation and one sender.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ReadsCount     int       `json:"reads_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage is the input of a message write.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
}

// Page is a cursor-paginated slice; NextCursor is nil on the last page.
type Page[T any] struct {
	Data       []T     `json:"data"`
	NextCursor *string `json:"next_cursor"`
}

// UserPresence is the durable online status of a user.
type UserPresence struct {
	UserID     string     `json:"user_id"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

type CallStatus string

const (
	CallRinging  CallStatus = "ringing"
	CallAnswered CallStatus = "answered"
	CallEnded    CallStatus = "ended"
)

// CallEndReason is recorded on the transition to CallEnded.
type CallEndReason string

const (
	EndEnded     CallEndReason = "ended"
	EndMissed    CallEndReason = "missed"
	EndRejected  CallEndReason = "rejected"
	EndFailed    CallEndReason = "failed"
	EndCancelled CallEndReason = "cancelled"
)

var callEndReasons = map[CallEndReason]struct{}{
	EndEnded: {}, EndMissed: {}, EndRejected: {}, EndFailed: {}, EndCancelled: {},
}

// CallSession is the in-memory lifecycle record of one call.
type CallSession struct {
	CallID         string
	ConversationID string
	CallerID       string
	CalleeID       string
	CallType       CallType
	Status         CallStatus
	StartedAt      time.Time
	AnsweredAt     *time.Time
}

// PushNotification is delivered to device tokens by a Notifier.
type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushJob is a queued push delivery to every device token of one user.
type PushJob struct {
	Tokens       []string         `json:"tokens"`
	Notification PushNotification `json:"notification"`
}
