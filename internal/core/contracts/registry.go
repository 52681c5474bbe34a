package contracts

import (
	"context"

	"chaty/internal/core/domain"
)

// Registry groups live connections into rooms and fans events out to them.
type Registry interface {
	// Register makes a connection addressable. Unregister removes it from
	// every room and returns the rooms it was in.
	Register(c Client)
	Unregister(connID string) []domain.RoomID
	// Join is idempotent and returns false once the connection is unregistered.
	Join(connID string, room domain.RoomID) bool
	Leave(connID string, room domain.RoomID)
	Members(room domain.RoomID) []Client
	IsMember(connID string, room domain.RoomID) bool
	// Broadcast to an empty room is a no-op.
	Broadcast(ctx context.Context, room domain.RoomID, event string, payload any)
	BroadcastExcept(ctx context.Context, room domain.RoomID, exceptConnID string, event string, payload any)
	// Emit targets a single connection.
	Emit(ctx context.Context, connID string, event string, payload any)
}

// Client is the minimal view of one websocket connection the registry needs.
type Client interface {
	ID() string
	UserID() string
	Send(ctx context.Context, data []byte) error
	Close()
}
