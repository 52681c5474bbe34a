package domain

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// Validated inbound payloads. Handlers only ever see these.

type ConversationRef struct {
	ConversationID string
}

type CallStartRequest struct {
	ConversationID string
	CallType       CallType
}

type CallAnswerRequest struct {
	ConversationID string
	CallID         string // optional
}

type CallEndRequest struct {
	ConversationID string
	CallID         string // optional
	Reason         CallEndReason
}

type SignalRequest struct {
	ConversationID string
	CallID         string
	SDP            SessionDescription
}

type IceCandidateRequest struct {
	ConversationID string
	CallID         string
	Candidate      json.RawMessage
}

var errInvalidPayload = NewValidationError(MsgInvalidPayload)

// ParseConversationRef accepts either a bare id string or an object with a
// string "conversation_id".
func ParseConversationRef(raw json.RawMessage) (ConversationRef, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if !ValidID(id) {
			return ConversationRef{}, errInvalidPayload
		}
		return ConversationRef{ConversationID: id}, nil
	}
	obj, ok := decodeObject(raw)
	if !ok {
		return ConversationRef{}, errInvalidPayload
	}
	id, ok = conversationID(obj)
	if !ok {
		return ConversationRef{}, errInvalidPayload
	}
	return ConversationRef{ConversationID: id}, nil
}

// ParseCallStart defaults the call type to audio when it is missing or unknown.
func ParseCallStart(raw json.RawMessage) (CallStartRequest, error) {
	ref, err := ParseConversationRef(raw)
	if err != nil {
		return CallStartRequest{}, err
	}
	req := CallStartRequest{ConversationID: ref.ConversationID, CallType: CallAudio}
	if obj, ok := decodeObject(raw); ok {
		if t, ok := stringField(obj, "call_type"); ok && CallType(t) == CallVideo {
			req.CallType = CallVideo
		}
	}
	return req, nil
}

func ParseCallAnswer(raw json.RawMessage) (CallAnswerRequest, error) {
	ref, err := ParseConversationRef(raw)
	if err != nil {
		return CallAnswerRequest{}, err
	}
	req := CallAnswerRequest{ConversationID: ref.ConversationID}
	if obj, ok := decodeObject(raw); ok {
		req.CallID, _ = stringField(obj, "call_id")
	}
	return req, nil
}

// ParseCallEnd defaults the reason to "ended" when it is not a known reason.
func ParseCallEnd(raw json.RawMessage) (CallEndRequest, error) {
	ref, err := ParseConversationRef(raw)
	if err != nil {
		return CallEndRequest{}, err
	}
	req := CallEndRequest{ConversationID: ref.ConversationID, Reason: EndEnded}
	if obj, ok := decodeObject(raw); ok {
		req.CallID, _ = stringField(obj, "call_id")
		if s, ok := stringField(obj, "status"); ok {
			if _, known := callEndReasons[CallEndReason(s)]; known {
				req.Reason = CallEndReason(s)
			}
		}
	}
	return req, nil
}

// ParseSignal validates an offer or answer: conversation id, call id and an
// sdp object with string "type" and "sdp".
func ParseSignal(raw json.RawMessage) (SignalRequest, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return SignalRequest{}, errInvalidPayload
	}
	convID, ok := conversationID(obj)
	if !ok {
		return SignalRequest{}, errInvalidPayload
	}
	callID, ok := stringField(obj, "call_id")
	if !ok || callID == "" {
		return SignalRequest{}, errInvalidPayload
	}
	sdpObj, ok := decodeObject(obj["sdp"])
	if !ok {
		return SignalRequest{}, errInvalidPayload
	}
	typ, okType := stringField(sdpObj, "type")
	sdp, okSDP := stringField(sdpObj, "sdp")
	if !okType || !okSDP {
		return SignalRequest{}, errInvalidPayload
	}
	return SignalRequest{
		ConversationID: convID,
		CallID:         callID,
		SDP:            SessionDescription{Type: typ, SDP: sdp},
	}, nil
}

// ParseIceCandidate requires a "candidate" key; a JSON null candidate is kept
// since it signals end-of-candidates.
func ParseIceCandidate(raw json.RawMessage) (IceCandidateRequest, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return IceCandidateRequest{}, errInvalidPayload
	}
	convID, ok := conversationID(obj)
	if !ok {
		return IceCandidateRequest{}, errInvalidPayload
	}
	callID, ok := stringField(obj, "call_id")
	if !ok || callID == "" {
		return IceCandidateRequest{}, errInvalidPayload
	}
	candidate, ok := obj["candidate"]
	if !ok {
		return IceCandidateRequest{}, errInvalidPayload
	}
	return IceCandidateRequest{
		ConversationID: convID,
		CallID:         callID,
		Candidate:      append(json.RawMessage(nil), candidate...),
	}, nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	v, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func conversationID(obj map[string]json.RawMessage) (string, bool) {
	id, ok := stringField(obj, "conversation_id")
	if !ok || !ValidID(id) {
		return "", false
	}
	return id, true
}

// ValidID reports whether s is a UUID as stored by the durable store.
func ValidID(s string) bool {
	return s != "" && uuid.Validate(s) == nil
}
