package domain

import (
	"encoding/json"
	"time"
)

// Inbound events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventCallStart         = "call:start"
	EventCallAnswer        = "call:answer"
	EventCallEnd           = "call:end"
	EventWebRTCOffer       = "webrtc-offer"
	EventWebRTCAnswer      = "webrtc-answer"
	EventWebRTCCandidate   = "webrtc-ice-candidate"
)

// Outbound events. WebRTC relays reuse the inbound names.
const (
	EventPresence     = "presence"
	EventMessageSent  = "message:sent"
	EventMessageNew   = "message:new"
	EventMessageRead  = "message:read"
	EventCallStarted  = "call:started"
	EventCallIncoming = "call:incoming"
	EventCallAnswered = "call:answered"
	EventCallOngoing  = "call:ongoing"
	EventCallEnded    = "call:ended"
	EventError        = "error"
)

// ErrorEvent names the caller-scoped error event of an inbound event.
func ErrorEvent(event string) string {
	return event + ":error"
}

// InboundFrame is one client frame before payload validation.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundFrame is what a connection receives.
type OutboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PresencePayload struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	IsOnline       bool       `json:"is_online"`
	LastSeenAt     *time.Time `json:"last_seen_at"`
}

type MessagePayload struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

type MessageReadPayload struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	MessageIDs     []string  `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

type CallStartedPayload struct {
	CallID         string     `json:"call_id"`
	CallType       CallType   `json:"call_type"`
	CallerID       string     `json:"caller_id"`
	CalleeID       string     `json:"callee_id"`
	ConversationID string     `json:"conversation_id"`
	Room           string     `json:"room"`
	StartedAt      time.Time  `json:"started_at"`
	Status         CallStatus `json:"status"`
}

type CallAnsweredPayload struct {
	CallID         string     `json:"call_id"`
	ConversationID string     `json:"conversation_id"`
	Room           string     `json:"room"`
	UserID         string     `json:"user_id"`
	AnsweredAt     time.Time  `json:"answered_at"`
	Status         CallStatus `json:"status"`
}

type CallEndedPayload struct {
	CallID         string        `json:"call_id"`
	ConversationID string        `json:"conversation_id"`
	EndedBy        string        `json:"ended_by"`
	EndedAt        time.Time     `json:"ended_at"`
	Status         CallEndReason `json:"status"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type SignalPayload struct {
	CallID         string             `json:"call_id"`
	ConversationID string             `json:"conversation_id"`
	FromUserID     string             `json:"from_user_id"`
	SDP            SessionDescription `json:"sdp"`
}

type IceCandidatePayload struct {
	CallID         string          `json:"call_id"`
	ConversationID string          `json:"conversation_id"`
	FromUserID     string          `json:"from_user_id"`
	Candidate      json.RawMessage `json:"candidate"`
}
