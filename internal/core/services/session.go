package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Session is the per-connection state the real-time handlers share. It
// remembers which conversation and call rooms the connection joined so
// teardown can notify them.
type Session struct {
	client contracts.Client
	userID string

	mu            sync.Mutex
	state         SessionState
	conversations map[string]struct{}
	calls         map[string]struct{}
}

func newSession(client contracts.Client, userID string) *Session {
	return &Session{
		client:        client,
		userID:        userID,
		state:         StateConnecting,
		conversations: make(map[string]struct{}),
		calls:         make(map[string]struct{}),
	}
}

func (s *Session) ID() string     { return s.client.ID() }
func (s *Session) UserID() string { return s.userID }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// addConversation records a joined conversation; false once the session closed.
func (s *Session) addConversation(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.conversations[convID] = struct{}{}
	return true
}

func (s *Session) removeConversation(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, convID)
}

func (s *Session) addCall(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.calls[convID] = struct{}{}
	return true
}

func (s *Session) removeCall(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, convID)
}

func (s *Session) Conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.conversations)
}

func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.calls)
}

// close moves the session to Closed once and returns the rooms it held.
func (s *Session) close() (convs, calls []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, false
	}
	s.state = StateClosed
	return keys(s.conversations), keys(s.calls), true
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type SessionService struct {
	log      *slog.Logger
	registry contracts.Registry
	presence contracts.PresenceTracker
	users    *UserService
	calls    *CallService
	tasks    contracts.TaskRunner
	now      func() time.Time
}

func NewSessionService(
	log *slog.Logger,
	registry contracts.Registry,
	presence contracts.PresenceTracker,
	users *UserService,
	calls *CallService,
	tasks contracts.TaskRunner,
) *SessionService {
	return &SessionService{
		log:      log,
		registry: registry,
		presence: presence,
		users:    users,
		calls:    calls,
		tasks:    tasks,
		now:      time.Now,
	}
}

// Connect admits a connection whose handshake identity is a non-empty
// string. Anything else closes the client with no other side effect.
func (s *SessionService) Connect(ctx context.Context, client contracts.Client, identity any) (*Session, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Connect")
	defer span.End()

	userID, ok := identity.(string)
	if !ok || userID == "" {
		client.Close()
		s.log.WarnContext(ctx, "session - connect - unauthenticated", logging.Connection(client.ID()))
		return nil, domain.ErrUnauthenticated
	}
	session := newSession(client, userID)
	session.setState(StateAuthenticated)

	s.registry.Register(client)
	s.registry.Join(client.ID(), domain.UserRoom(userID))

	at := s.now()
	online, err := s.presence.MarkConnected(ctx, userID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "session - connect - mark connected failed", logging.User(userID), logging.Err(err))
	}
	if online {
		s.tasks.Go(ctx, "presence_online", func(ctx context.Context) error {
			return s.users.SetOnline(ctx, userID, true, at)
		})
	}
	session.setState(StateActive)
	metrics.ConnectionsActive.Inc()
	s.log.InfoContext(ctx, "session - connect - active", logging.User(userID), logging.Connection(client.ID()), "online_edge", online)
	return session, nil
}

// Disconnect tears the session down. It runs detached from ctx cancellation
// and is safe to call more than once.
func (s *SessionService) Disconnect(ctx context.Context, session *Session) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "SessionService.Disconnect")
	defer span.End()

	convs, calls, ok := session.close()
	if !ok {
		return
	}
	userID := session.UserID()
	connID := session.ID()
	s.registry.Leave(connID, domain.UserRoom(userID))

	offline, err := s.presence.MarkDisconnected(ctx, userID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "session - disconnect - mark disconnected failed", logging.User(userID), logging.Err(err))
	}
	if offline {
		at := s.now()
		if err := s.users.SetOnline(ctx, userID, false, at); err != nil {
			span.RecordError(err)
			s.log.ErrorContext(ctx, "session - disconnect - persist offline failed", logging.User(userID), logging.Err(err))
		}
		for _, convID := range convs {
			s.registry.BroadcastExcept(ctx, domain.ConversationRoom(convID), connID, domain.EventPresence, domain.PresencePayload{
				ConversationID: convID,
				UserID:         userID,
				IsOnline:       false,
				LastSeenAt:     &at,
			})
		}
	}
	for _, convID := range calls {
		s.calls.HandleDisconnect(ctx, session, convID)
	}
	s.registry.Unregister(connID)
	session.client.Close()
	metrics.ConnectionsActive.Dec()
	s.log.InfoContext(ctx, "session - disconnect - closed", logging.User(userID), logging.Connection(connID), "offline_edge", offline)
}
