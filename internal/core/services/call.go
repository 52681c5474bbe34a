package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"

	"github.com/google/uuid"
)

// CallService relays call lifecycle events between the two participants of
// a conversation and tracks at most one call per conversation.
type CallService struct {
	log      *slog.Logger
	registry contracts.Registry
	members  *Membership
	now      func() time.Time
	newID    func() string

	mu    sync.Mutex
	calls map[string]*domain.CallSession // conv_id → call
}

func NewCallService(log *slog.Logger, registry contracts.Registry, members *Membership) *CallService {
	return &CallService{
		log:      log,
		registry: registry,
		members:  members,
		now:      time.Now,
		newID:    uuid.NewString,
		calls:    make(map[string]*domain.CallSession),
	}
}

// Session returns a copy of the call tracked for convID.
func (c *CallService) Session(convID string) (domain.CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.calls[convID]
	if !ok {
		return domain.CallSession{}, false
	}
	return *cs, true
}

func (c *CallService) track(cs *domain.CallSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.calls[cs.ConversationID]; !ok {
		metrics.ActiveCalls.Inc()
	}
	c.calls[cs.ConversationID] = cs
}

// drop forgets the call of convID when callID is empty or matches it.
func (c *CallService) drop(convID, callID string) (domain.CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.calls[convID]
	if !ok || (callID != "" && cs.CallID != callID) {
		return domain.CallSession{}, false
	}
	delete(c.calls, convID)
	metrics.ActiveCalls.Dec()
	return *cs, true
}

func (c *CallService) Start(ctx context.Context, s *Session, raw json.RawMessage) error {
	req, err := domain.ParseCallStart(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, req.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	room := domain.CallRoom(req.ConversationID)
	if !c.registry.Join(s.ID(), room) || !s.addCall(req.ConversationID) {
		return nil
	}

	cs := &domain.CallSession{
		CallID:         c.newID(),
		ConversationID: req.ConversationID,
		CallerID:       s.UserID(),
		CalleeID:       p.Peer(s.UserID()),
		CallType:       req.CallType,
		Status:         domain.CallRinging,
		StartedAt:      c.now(),
	}
	c.track(cs)

	payload := domain.CallStartedPayload{
		CallID:         cs.CallID,
		CallType:       cs.CallType,
		CallerID:       cs.CallerID,
		CalleeID:       cs.CalleeID,
		ConversationID: cs.ConversationID,
		Room:           room.String(),
		StartedAt:      cs.StartedAt,
		Status:         cs.Status,
	}
	c.registry.Broadcast(ctx, domain.UserRoom(cs.CallerID), domain.EventCallStarted, payload)
	c.registry.Broadcast(ctx, domain.UserRoom(cs.CalleeID), domain.EventCallIncoming, payload)
	c.log.InfoContext(ctx, "call - start - ringing", logging.Call(cs.CallID), logging.Conversation(cs.ConversationID), logging.User(cs.CallerID))
	return nil
}

func (c *CallService) Answer(ctx context.Context, s *Session, raw json.RawMessage) error {
	req, err := domain.ParseCallAnswer(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, req.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	room := domain.CallRoom(req.ConversationID)
	if !c.registry.Join(s.ID(), room) || !s.addCall(req.ConversationID) {
		return nil
	}

	answeredAt := c.now()
	callID := req.CallID
	c.mu.Lock()
	if cs, ok := c.calls[req.ConversationID]; ok && (callID == "" || callID == cs.CallID) {
		callID = cs.CallID
		if cs.Status == domain.CallRinging {
			cs.Status = domain.CallAnswered
			cs.AnsweredAt = &answeredAt
		}
	}
	c.mu.Unlock()

	payload := domain.CallAnsweredPayload{
		CallID:         callID,
		ConversationID: req.ConversationID,
		Room:           room.String(),
		UserID:         s.UserID(),
		AnsweredAt:     answeredAt,
		Status:         domain.CallAnswered,
	}
	self, peer := domain.UserRoom(s.UserID()), domain.UserRoom(p.Peer(s.UserID()))
	c.registry.Broadcast(ctx, self, domain.EventCallAnswered, payload)
	c.registry.Broadcast(ctx, peer, domain.EventCallAnswered, payload)
	c.registry.Broadcast(ctx, self, domain.EventCallOngoing, payload)
	c.registry.Broadcast(ctx, peer, domain.EventCallOngoing, payload)
	c.log.InfoContext(ctx, "call - answer - ongoing", logging.Call(callID), logging.Conversation(req.ConversationID), logging.User(s.UserID()))
	return nil
}

func (c *CallService) End(ctx context.Context, s *Session, raw json.RawMessage) error {
	req, err := domain.ParseCallEnd(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, req.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	c.registry.Leave(s.ID(), domain.CallRoom(req.ConversationID))
	s.removeCall(req.ConversationID)

	callID := req.CallID
	if cs, ok := c.drop(req.ConversationID, req.CallID); ok {
		callID = cs.CallID
	}
	c.emitEnded(ctx, p, callID, s.UserID(), req.Reason)
	return nil
}

// HandleDisconnect ends the call of convID when the closing connection was
// the last one of its user in the call room.
func (c *CallService) HandleDisconnect(ctx context.Context, s *Session, convID string) {
	for _, m := range c.registry.Members(domain.CallRoom(convID)) {
		if m.UserID() == s.UserID() && m.ID() != s.ID() {
			return
		}
	}
	cs, ok := c.Session(convID)
	if !ok || (cs.CallerID != s.UserID() && cs.CalleeID != s.UserID()) {
		return
	}
	if _, ok := c.drop(convID, cs.CallID); !ok {
		return
	}
	reason := domain.EndEnded
	if cs.Status == domain.CallRinging {
		reason = domain.EndFailed
		if cs.CallerID == s.UserID() {
			reason = domain.EndCancelled
		}
	}
	c.registry.Leave(s.ID(), domain.CallRoom(convID))
	p := domain.Participants{ConversationID: convID, User1ID: cs.CallerID, User2ID: cs.CalleeID}
	c.emitEnded(ctx, &p, cs.CallID, s.UserID(), reason)
}

func (c *CallService) emitEnded(ctx context.Context, p *domain.Participants, callID, endedBy string, reason domain.CallEndReason) {
	payload := domain.CallEndedPayload{
		CallID:         callID,
		ConversationID: p.ConversationID,
		EndedBy:        endedBy,
		EndedAt:        c.now(),
		Status:         reason,
	}
	c.registry.Broadcast(ctx, domain.UserRoom(endedBy), domain.EventCallEnded, payload)
	c.registry.Broadcast(ctx, domain.UserRoom(p.Peer(endedBy)), domain.EventCallEnded, payload)
	c.log.InfoContext(ctx, "call - end - ended", logging.Call(callID), logging.Conversation(p.ConversationID), logging.User(endedBy), "status", reason)
}

// RelaySignal forwards an SDP offer or answer to the peer's personal room.
func (c *CallService) RelaySignal(ctx context.Context, s *Session, event string, raw json.RawMessage) error {
	req, err := domain.ParseSignal(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, req.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	c.registry.Broadcast(ctx, domain.UserRoom(p.Peer(s.UserID())), event, domain.SignalPayload{
		CallID:         req.CallID,
		ConversationID: req.ConversationID,
		FromUserID:     s.UserID(),
		SDP:            req.SDP,
	})
	return nil
}

func (c *CallService) RelayCandidate(ctx context.Context, s *Session, raw json.RawMessage) error {
	req, err := domain.ParseIceCandidate(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, req.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	c.registry.Broadcast(ctx, domain.UserRoom(p.Peer(s.UserID())), domain.EventWebRTCCandidate, domain.IceCandidatePayload{
		CallID:         req.CallID,
		ConversationID: req.ConversationID,
		FromUserID:     s.UserID(),
		Candidate:      req.Candidate,
	})
	return nil
}
