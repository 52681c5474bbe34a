package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"chaty/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id, userID string
	mu         sync.Mutex
	frames     []domain.InboundFrame
	fail       bool
}

func (c *fakeClient) ID() string     { return c.id }
func (c *fakeClient) UserID() string { return c.userID }
func (c *fakeClient) Close()         {}

func (c *fakeClient) Send(_ context.Context, data []byte) error {
	if c.fail {
		return errors.New("buffer full")
	}
	var f domain.InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
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

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestJoinIsIdempotentSetMembership(t *testing.T) {
	h := newTestRegistry()
	a := &fakeClient{id: "c1", userID: "u1"}
	h.Register(a)
	room := domain.ConversationRoom("conv")

	assert.True(t, h.Join("c1", room))
	assert.True(t, h.Join("c1", room))
	assert.Len(t, h.Members(room), 1)

	h.Leave("c1", room)
	assert.False(t, h.IsMember("c1", room))
	assert.Empty(t, h.Members(room))

	assert.NotPanics(t, func() { h.Leave("c1", room) })
}

func TestJoinRefusedAfterUnregister(t *testing.T) {
	h := newTestRegistry()
	h.Register(&fakeClient{id: "c1", userID: "u1"})
	require.True(t, h.Join("c1", domain.UserRoom("u1")))
	require.True(t, h.Join("c1", domain.ConversationRoom("conv")))

	rooms := h.Unregister("c1")
	assert.ElementsMatch(t, []domain.RoomID{domain.UserRoom("u1"), domain.ConversationRoom("conv")}, rooms)
	assert.False(t, h.Join("c1", domain.ConversationRoom("conv")))
	assert.Empty(t, h.Members(domain.UserRoom("u1")))
	assert.Empty(t, h.Unregister("c1"))
}

func TestBroadcastExcept(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	a := &fakeClient{id: "a", userID: "u1"}
	b := &fakeClient{id: "b", userID: "u2"}
	h.Register(a)
	h.Register(b)
	room := domain.ConversationRoom("conv")
	h.Join("a", room)
	h.Join("b", room)

	h.BroadcastExcept(ctx, room, "a", domain.EventPresence, domain.PresencePayload{UserID: "u1", IsOnline: true})
	assert.Empty(t, a.events())
	assert.Equal(t, []string{domain.EventPresence}, b.events())

	h.Broadcast(ctx, room, domain.EventMessageNew, map[string]string{"x": "y"})
	assert.Equal(t, []string{domain.EventMessageNew}, a.events())
	assert.Len(t, b.events(), 2)

	var data map[string]string
	require.NoError(t, json.Unmarshal(a.frames[0].Data, &data))
	assert.Equal(t, "y", data["x"])
}

func TestBroadcastEmptyRoomAndScopes(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	a := &fakeClient{id: "a", userID: "x"}
	h.Register(a)
	h.Join("a", domain.UserRoom("x"))

	h.Broadcast(ctx, domain.ConversationRoom("nobody"), domain.EventPresence, nil)
	h.Broadcast(ctx, domain.ConversationRoom("x"), domain.EventPresence, nil)
	assert.Empty(t, a.events(), "same id in another scope is another room")

	h.Broadcast(ctx, domain.UserRoom("x"), domain.EventMessageSent, nil)
	assert.Equal(t, []string{domain.EventMessageSent}, a.events())
}

func TestSendFailureDoesNotStopFanout(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	bad := &fakeClient{id: "bad", userID: "u1", fail: true}
	good := &fakeClient{id: "good", userID: "u1"}
	h.Register(bad)
	h.Register(good)
	h.Join("bad", domain.UserRoom("u1"))
	h.Join("good", domain.UserRoom("u1"))

	h.Broadcast(ctx, domain.UserRoom("u1"), domain.EventMessageNew, nil)
	assert.Equal(t, []string{domain.EventMessageNew}, good.events())
}

func TestEmit(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	a := &fakeClient{id: "a", userID: "u1"}
	h.Register(a)

	h.Emit(ctx, "a", domain.EventError, domain.ErrorPayload{Message: domain.MsgUnknownEvent})
	h.Emit(ctx, "missing", domain.EventError, nil)
	require.Equal(t, []string{domain.EventError}, a.events())
	assert.JSONEq(t, `{"message":"Unknown event."}`, string(a.frames[0].Data))
}

func TestConcurrentJoinAndBroadcast(t *testing.T) {
	ctx := context.Background()
	h := newTestRegistry()
	room := domain.ConversationRoom("conv")
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		c := &fakeClient{id: fmt.Sprintf("c%d", i), userID: "u"}
		h.Register(c)
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Join(c.ID(), room)
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(ctx, room, domain.EventPresence, nil)
		}()
	}
	wg.Wait()
	assert.Len(t, h.Members(room), 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.Unregister(id)
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()
	assert.Empty(t, h.Members(room))
}
