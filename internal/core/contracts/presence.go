package contracts

import "context"

// PresenceTracker reference-counts live connections per user and reports
// the online/offline edges.
type PresenceTracker interface {
	// MarkConnected returns true when this is the user's first connection.
	MarkConnected(ctx context.Context, userID string) (bool, error)
	// MarkDisconnected returns true when the user's last connection is gone.
	MarkDisconnected(ctx context.Context, userID string) (bool, error)
	Count(ctx context.Context, userID string) (int, error)
}
