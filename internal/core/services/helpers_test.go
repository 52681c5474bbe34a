package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"chaty/internal/app/presence"
	"chaty/internal/app/registry"
	"chaty/internal/app/worker"
	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient records every frame the registry sends it.
type fakeClient struct {
	id, userID string

	mu     sync.Mutex
	frames []domain.InboundFrame
	closed bool
}

func (c *fakeClient) ID() string     { return c.id }
func (c *fakeClient) UserID() string { return c.userID }

func (c *fakeClient) Send(_ context.Context, data []byte) error {
	var f domain.InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

// last decodes the data of the most recent frame named event.
func (c *fakeClient) last(t *testing.T, event string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %q frame, got %v", event, c.frames)
}

func (c *fakeClient) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// memStore implements every repository in memory.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
	messages      []domain.Message
	reads         map[string]map[string]time.Time
	presence      map[string]domain.UserPresence
	presenceAt    map[string]time.Time
	tokens        map[string][]string
	clock         time.Time
	failCreate    error
	presenceCalls []bool
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]domain.Conversation),
		reads:         make(map[string]map[string]time.Time),
		presence:      make(map[string]domain.UserPresence),
		presenceAt:    make(map[string]time.Time),
		tokens:        make(map[string][]string),
		clock:         time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addConversation(u1, u2 string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.conversations[id] = domain.Conversation{ID: id, User1ID: u1, User2ID: u2, CreatedAt: s.clock}
	return id
}

func (s *memStore) FindParticipants(_ context.Context, convID string) (*domain.Participants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return &domain.Participants{ConversationID: c.ID, User1ID: c.User1ID, User2ID: c.User2ID}, nil
}

func (s *memStore) FindByID(_ context.Context, convID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return &c, nil
}

func (s *memStore) FindByUser(_ context.Context, userID string, limit int, _, _ string) (domain.Page[domain.ConversationSummary], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ConversationSummary
	for _, c := range s.conversations {
		p := domain.Participants{User1ID: c.User1ID, User2ID: c.User2ID}
		if !p.Has(userID) {
			continue
		}
		out = append(out, domain.ConversationSummary{ID: c.ID, PeerID: p.Peer(userID), UpdatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return domain.Page[domain.ConversationSummary]{Data: out}, nil
}

func (s *memStore) Create(_ context.Context, msg domain.NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	s.clock = s.clock.Add(time.Millisecond)
	m := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      s.clock,
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) FindCreatedAt(_ context.Context, convID, messageID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID && m.ConversationID == convID {
			return m.CreatedAt, nil
		}
	}
	return time.Time{}, domain.ErrMessageNotFound
}

func (s *memStore) FindUnreadIDs(_ context.Context, convID, receiverID string, upto time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.messages {
		if m.ConversationID != convID || m.SenderID == receiverID || m.CreatedAt.After(upto) {
			continue
		}
		if _, read := s.reads[m.ID][receiverID]; read {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *memStore) FindPage(_ context.Context, convID string, limit int, _ string) (domain.Page[domain.Message], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].ConversationID == convID {
			out = append(out, s.messages[i])
		}
	}
	return domain.Page[domain.Message]{Data: out}, nil
}

func (s *memStore) CreateMany(_ context.Context, ids []string, receiverID string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if s.reads[id] == nil {
			s.reads[id] = make(map[string]time.Time)
		}
		if _, ok := s.reads[id][receiverID]; !ok {
			s.reads[id][receiverID] = readAt
		}
	}
	return nil
}

func (s *memStore) SetOnlineStatus(_ context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenceCalls = append(s.presenceCalls, online)
	if last, ok := s.presenceAt[userID]; ok && at.Before(last) {
		return nil
	}
	p := s.presence[userID]
	p.UserID = userID
	p.IsOnline = online
	if !online {
		seen := at
		p.LastSeenAt = &seen
	}
	s.presence[userID] = p
	s.presenceAt[userID] = at
	return nil
}

func (s *memStore) FindPresence(_ context.Context, userID string) (*domain.UserPresence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (s *memStore) FindActiveTokens(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[userID], nil
}

func (s *memStore) presenceWrites() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.presenceCalls...)
}

type noTx struct{}

func (noTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// mapCache is an in-memory Cache with glob invalidation.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *mapCache) Invalidate(_ context.Context, patterns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patterns {
		for k := range c.entries {
			if ok, _ := path.Match(p, k); ok {
				delete(c.entries, k)
			}
		}
	}
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// brokenCache behaves like a backend that is down: reads miss, writes vanish.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) {}
func (brokenCache) Invalidate(context.Context, ...string)              {}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.PushJob
}

func (n *fakeNotifier) SendPushNotification(_ context.Context, tokens []string, p domain.PushNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, domain.PushJob{Tokens: tokens, Notification: p})
	return nil
}

type harness struct {
	registry *registry.Registry
	presence *presence.Tracker
	store    *memStore
	tasks    *worker.TaskPool
	notifier *fakeNotifier
	users    *UserService
	calls    *CallService
	convs    *ConversationService
	sessions *SessionService
	manager  *ManagerService
}

func newHarness(t *testing.T, cache contracts.Cache) *harness {
	t.Helper()
	log := discardLogger()
	h := &harness{
		registry: registry.NewRegistry(log),
		presence: presence.NewTracker(),
		store:    newMemStore(),
		tasks:    worker.NewTaskPool(log, time.Second),
		notifier: &fakeNotifier{},
	}
	reader := NewCacheReader(log, cache)
	members := NewMembership(reader, h.store)
	h.users = NewUserService(log, h.store, reader)
	h.calls = NewCallService(log, h.registry, members)
	h.convs = NewConversationService(log, h.registry, members, h.users, reader, ConversationRepos{
		Conversations: h.store,
		Messages:      h.store,
		Reads:         h.store,
		PushTokens:    h.store,
	}, noTx{}, h.notifier, h.tasks)
	h.sessions = NewSessionService(log, h.registry, h.presence, h.users, h.calls, h.tasks)
	h.manager = NewManagerService(log, h.registry, h.convs, h.calls)
	t.Cleanup(h.tasks.Wait)
	return h
}

func (h *harness) connect(t *testing.T, userID, connID string) (*Session, *fakeClient) {
	t.Helper()
	c := &fakeClient{id: connID, userID: userID}
	s, err := h.sessions.Connect(context.Background(), c, userID)
	require.NoError(t, err)
	return s, c
}

func (h *harness) send(s *Session, event string, data any) {
	raw, _ := json.Marshal(map[string]any{"event": event, "data": data})
	h.manager.HandleMessage(context.Background(), s, raw)
}
