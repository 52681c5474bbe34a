package domain

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a conversation participant")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrUnauthenticated      = errors.New("unauthenticated connection")
)

// User-facing messages carried by *:error events and HTTP bodies.
const (
	MsgInvalidPayload       = "Payload is not valid."
	MsgConversationNotFound = "Conversation not found."
	MsgMessageNotFound      = "Message not found."
	MsgUnknownEvent         = "Unknown event."
)

// ValidationError is a malformed-input failure with a message safe to show
// to the caller. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PublicMessage maps an error to the text shown to the originating client.
func PublicMessage(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrValidation):
		return MsgInvalidPayload
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrNotParticipant):
		return MsgConversationNotFound
	case errors.Is(err, ErrMessageNotFound):
		return MsgMessageNotFound
	default:
		return "Internal server error."
	}
}
