package services

import (
	"context"
	"testing"

	"chaty/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callFixture struct {
	h                  *harness
	convID             string
	alice, bob         *Session
	aliceConn, bobConn *fakeClient
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	h := newHarness(t, newMapCache())
	f := &callFixture{h: h, convID: h.store.addConversation("alice", "bob")}
	f.alice, f.aliceConn = h.connect(t, "alice", "a1")
	f.bob, f.bobConn = h.connect(t, "bob", "b1")
	return f
}

func (f *callFixture) start(t *testing.T) domain.CallStartedPayload {
	t.Helper()
	f.h.send(f.alice, domain.EventCallStart, map[string]string{"conversation_id": f.convID, "call_type": "video"})
	var incoming domain.CallStartedPayload
	f.bobConn.last(t, domain.EventCallIncoming, &incoming)
	return incoming
}

func (f *callFixture) answer(t *testing.T, callID string) {
	t.Helper()
	f.h.send(f.bob, domain.EventCallAnswer, map[string]string{"conversation_id": f.convID, "call_id": callID})
}

func TestCallStartNotifiesBothSides(t *testing.T) {
	f := newCallFixture(t)

	incoming := f.start(t)

	var started domain.CallStartedPayload
	f.aliceConn.last(t, domain.EventCallStarted, &started)
	assert.Equal(t, started, incoming)
	assert.NotEmpty(t, incoming.CallID)
	assert.Equal(t, domain.CallVideo, incoming.CallType)
	assert.Equal(t, "alice", incoming.CallerID)
	assert.Equal(t, "bob", incoming.CalleeID)
	assert.Equal(t, domain.CallRinging, incoming.Status)
	assert.Equal(t, domain.CallRoom(f.convID).String(), incoming.Room)

	cs, ok := f.h.calls.Session(f.convID)
	require.True(t, ok)
	assert.Equal(t, incoming.CallID, cs.CallID)
	assert.True(t, f.h.registry.IsMember("a1", domain.CallRoom(f.convID)))
	assert.Zero(t, f.bobConn.count(domain.EventCallStarted))
}

func TestCallAnswerMovesToOngoing(t *testing.T) {
	f := newCallFixture(t)
	incoming := f.start(t)

	f.answer(t, "")

	for _, c := range []*fakeClient{f.aliceConn, f.bobConn} {
		var answered domain.CallAnsweredPayload
		c.last(t, domain.EventCallAnswered, &answered)
		assert.Equal(t, incoming.CallID, answered.CallID, "answer falls back to the tracked call")
		assert.Equal(t, "bob", answered.UserID)
		assert.Equal(t, 1, c.count(domain.EventCallOngoing))
	}
	cs, ok := f.h.calls.Session(f.convID)
	require.True(t, ok)
	assert.Equal(t, domain.CallAnswered, cs.Status)
	require.NotNil(t, cs.AnsweredAt)
	assert.True(t, f.h.registry.IsMember("b1", domain.CallRoom(f.convID)))
}

func TestCallEndWithReason(t *testing.T) {
	f := newCallFixture(t)
	incoming := f.start(t)

	f.h.send(f.bob, domain.EventCallEnd, map[string]string{
		"conversation_id": f.convID,
		"call_id":         incoming.CallID,
		"status":          "rejected",
	})

	for _, c := range []*fakeClient{f.aliceConn, f.bobConn} {
		var ended domain.CallEndedPayload
		c.last(t, domain.EventCallEnded, &ended)
		assert.Equal(t, domain.EndRejected, ended.Status)
		assert.Equal(t, "bob", ended.EndedBy)
		assert.Equal(t, incoming.CallID, ended.CallID)
	}
	_, ok := f.h.calls.Session(f.convID)
	assert.False(t, ok)
}

func TestCallEndUnknownReasonDefaultsToEnded(t *testing.T) {
	f := newCallFixture(t)
	f.start(t)

	f.h.send(f.alice, domain.EventCallEnd, map[string]string{"conversation_id": f.convID, "status": "bored"})

	var ended domain.CallEndedPayload
	f.bobConn.last(t, domain.EventCallEnded, &ended)
	assert.Equal(t, domain.EndEnded, ended.Status)
	assert.False(t, f.h.registry.IsMember("a1", domain.CallRoom(f.convID)))
}

func TestCallStartSupersedesPreviousCall(t *testing.T) {
	f := newCallFixture(t)
	first := f.start(t)
	second := f.start(t)

	assert.NotEqual(t, first.CallID, second.CallID)
	cs, ok := f.h.calls.Session(f.convID)
	require.True(t, ok)
	assert.Equal(t, second.CallID, cs.CallID)

	// Ending the stale call id leaves the current call tracked.
	f.h.send(f.bob, domain.EventCallEnd, map[string]string{"conversation_id": f.convID, "call_id": first.CallID})
	cs, ok = f.h.calls.Session(f.convID)
	require.True(t, ok)
	assert.Equal(t, second.CallID, cs.CallID)
}

func TestCallDisconnectReasons(t *testing.T) {
	tests := []struct {
		name     string
		answered bool
		leaver   string
		want     domain.CallEndReason
	}{
		{name: "caller hangs up while ringing", leaver: "alice", want: domain.EndCancelled},
		{name: "callee drops while ringing", leaver: "bob", want: domain.EndFailed},
		{name: "callee drops during call", answered: true, leaver: "bob", want: domain.EndEnded},
		{name: "caller drops during call", answered: true, leaver: "alice", want: domain.EndEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCallFixture(t)
			incoming := f.start(t)
			if tt.answered {
				f.answer(t, incoming.CallID)
			} else if tt.leaver == "bob" {
				// A ringing callee is not in the call room until it answers.
				require.True(t, f.h.registry.Join("b1", domain.CallRoom(f.convID)))
				require.True(t, f.bob.addCall(f.convID))
			}
			leaver, observer := f.alice, f.bobConn
			if tt.leaver == "bob" {
				leaver, observer = f.bob, f.aliceConn
			}

			f.h.sessions.Disconnect(context.Background(), leaver)

			var ended domain.CallEndedPayload
			observer.last(t, domain.EventCallEnded, &ended)
			assert.Equal(t, tt.want, ended.Status)
			assert.Equal(t, tt.leaver, ended.EndedBy)
			assert.Equal(t, incoming.CallID, ended.CallID)
			_, ok := f.h.calls.Session(f.convID)
			assert.False(t, ok)
		})
	}
}

func TestCallSurvivesWhileAnotherDeviceStaysInRoom(t *testing.T) {
	f := newCallFixture(t)
	incoming := f.start(t)
	f.answer(t, incoming.CallID)

	bobTablet, _ := f.h.connect(t, "bob", "b2")
	require.True(t, f.h.registry.Join("b2", domain.CallRoom(f.convID)))
	require.True(t, bobTablet.addCall(f.convID))

	f.h.sessions.Disconnect(context.Background(), f.bob)

	assert.Zero(t, f.aliceConn.count(domain.EventCallEnded))
	_, ok := f.h.calls.Session(f.convID)
	assert.True(t, ok)
}

func TestCallEventsRequireMembership(t *testing.T) {
	f := newCallFixture(t)
	mallory, malloryConn := f.h.connect(t, "mallory", "m1")

	f.h.send(mallory, domain.EventCallStart, f.convID)

	var e domain.ErrorPayload
	malloryConn.last(t, "call:start:error", &e)
	assert.Equal(t, domain.MsgConversationNotFound, e.Message)
	assert.Zero(t, f.bobConn.count(domain.EventCallIncoming))
	_, ok := f.h.calls.Session(f.convID)
	assert.False(t, ok)
}

func TestWebRTCRelay(t *testing.T) {
	f := newCallFixture(t)
	incoming := f.start(t)

	f.h.send(f.alice, domain.EventWebRTCOffer, map[string]any{
		"conversation_id": f.convID,
		"call_id":         incoming.CallID,
		"sdp":             map[string]string{"type": "offer", "sdp": "v=0"},
	})
	var offer domain.SignalPayload
	f.bobConn.last(t, domain.EventWebRTCOffer, &offer)
	assert.Equal(t, "alice", offer.FromUserID)
	assert.Equal(t, domain.SessionDescription{Type: "offer", SDP: "v=0"}, offer.SDP)
	assert.Zero(t, f.aliceConn.count(domain.EventWebRTCOffer))

	f.h.send(f.bob, domain.EventWebRTCAnswer, map[string]any{
		"conversation_id": f.convID,
		"call_id":         incoming.CallID,
		"sdp":             map[string]string{"type": "answer", "sdp": "v=0"},
	})
	assert.Equal(t, 1, f.aliceConn.count(domain.EventWebRTCAnswer))

	f.h.send(f.bob, domain.EventWebRTCCandidate, map[string]any{
		"conversation_id": f.convID,
		"call_id":         incoming.CallID,
		"candidate":       map[string]any{"candidate": "candidate:1", "sdpMid": "0"},
	})
	var cand domain.IceCandidatePayload
	f.aliceConn.last(t, domain.EventWebRTCCandidate, &cand)
	assert.Equal(t, "bob", cand.FromUserID)
	assert.JSONEq(t, `{"candidate":"candidate:1","sdpMid":"0"}`, string(cand.Candidate))
}

func TestWebRTCInvalidPayloadOnlyReachesSender(t *testing.T) {
	f := newCallFixture(t)
	f.bobConn.reset()

	f.h.send(f.alice, domain.EventWebRTCOffer, map[string]any{"conversation_id": f.convID, "call_id": "c1"})

	var e domain.ErrorPayload
	f.aliceConn.last(t, "webrtc-offer:error", &e)
	assert.Equal(t, domain.MsgInvalidPayload, e.Message)
	assert.Empty(t, f.bobConn.events())
}
