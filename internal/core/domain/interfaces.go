package domain

import (
	"context"
	"time"
)

// ConversationRepository reads conversations. Writes are owned by the HTTP
// CRUD layer and never reach the real-time core.
type ConversationRepository interface {
	// FindParticipants returns ErrConversationNotFound for an unknown id.
	FindParticipants(ctx context.Context, convID string) (*Participants, error)
	FindByID(ctx context.Context, convID string) (*Conversation, error)
	// FindByUser lists conversations of userID, most recently active first.
	// search filters on the peer's username; cursor is the last conversation id seen.
	FindByUser(ctx context.Context, userID string, limit int, search, cursor string) (Page[ConversationSummary], error)
}

// MessageRepository handles message persistence and read computations.
type MessageRepository interface {
	Create(ctx context.Context, msg NewMessage) (*Message, error)
	// FindCreatedAt returns ErrMessageNotFound if the message is not in convID.
	FindCreatedAt(ctx context.Context, convID, messageID string) (time.Time, error)
	// FindUnreadIDs returns ids of messages in convID not sent by receiverID,
	// without a read record for receiverID, with created_at <= upto.
	FindUnreadIDs(ctx context.Context, convID, receiverID string, upto time.Time) ([]string, error)
	// FindPage returns messages newest first, older than cursor when set.
	FindPage(ctx context.Context, convID string, limit int, cursor string) (Page[Message], error)
}

// ReadReceiptRepository stores read records, unique per (message, receiver).
type ReadReceiptRepository interface {
	// CreateMany silently skips already existing records.
	CreateMany(ctx context.Context, messageIDs []string, receiverID string, readAt time.Time) error
}

// UserRepository covers the presence columns of the user directory.
type UserRepository interface {
	// SetOnlineStatus ignores writes stamped earlier than the last applied one.
	SetOnlineStatus(ctx context.Context, userID string, isOnline bool, at time.Time) error
	FindPresence(ctx context.Context, userID string) (*UserPresence, error)
}

// PushTokenRepository lists device tokens registered by a user.
type PushTokenRepository interface {
	FindActiveTokens(ctx context.Context, userID string) ([]string, error)
}
