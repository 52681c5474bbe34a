package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"
)

// Registry is the process-wide room table. Membership changes take the write
// lock; broadcasts copy the member list under the read lock and send outside it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]contracts.Client                   // conn_id → client
	rooms   map[domain.RoomID]map[string]contracts.Client // room → conn_id → client
	joined  map[string]map[domain.RoomID]struct{}         // conn_id → rooms
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]contracts.Client),
		rooms:   make(map[domain.RoomID]map[string]contracts.Client),
		joined:  make(map[string]map[domain.RoomID]struct{}),
		log:     log,
	}
}

func (h *Registry) Register(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	if h.joined[c.ID()] == nil {
		h.joined[c.ID()] = make(map[domain.RoomID]struct{})
	}
}

func (h *Registry) Unregister(connID string) []domain.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]domain.RoomID, 0, len(h.joined[connID]))
	for room := range h.joined[connID] {
		h.removeLocked(connID, room)
		rooms = append(rooms, room)
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
	return rooms
}

func (h *Registry) Join(connID string, room domain.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]contracts.Client)
	}
	h.rooms[room][connID] = c
	h.joined[connID][room] = struct{}{}
	return true
}

func (h *Registry) Leave(connID string, room domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID, room)
	if rooms := h.joined[connID]; rooms != nil {
		delete(rooms, room)
	}
}

// removeLocked drops the membership and deletes the room once it is empty.
func (h *Registry) removeLocked(connID string, room domain.RoomID) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Registry) IsMember(connID string, room domain.RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

func (h *Registry) Members(room domain.RoomID) []contracts.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]contracts.Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	return members
}

func (h *Registry) Broadcast(ctx context.Context, room domain.RoomID, event string, payload any) {
	h.BroadcastExcept(ctx, room, "", event, payload)
}

func (h *Registry) BroadcastExcept(ctx context.Context, room domain.RoomID, exceptConnID string, event string, payload any) {
	members := h.Members(room)
	if len(members) == 0 {
		return
	}
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("registry - broadcast - encode failed", "event", event, logging.Room(room), logging.Err(err))
		return
	}
	metrics.Broadcasts.WithLabelValues(string(room.Scope)).Inc()
	for _, c := range members {
		if c.ID() == exceptConnID {
			continue
		}
		if err := c.Send(ctx, data); err != nil {
			h.log.Debug("registry - broadcast - send failed", logging.Connection(c.ID()), "event", event, logging.Err(err))
		}
	}
}

func (h *Registry) Emit(ctx context.Context, connID string, event string, payload any) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("registry - emit - encode failed", "event", event, logging.Connection(connID), logging.Err(err))
		return
	}
	if err := c.Send(ctx, data); err != nil {
		h.log.Debug("registry - emit - send failed", logging.Connection(connID), "event", event, logging.Err(err))
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(domain.OutboundFrame{Event: event, Data: payload})
}
