package contracts

import (
	"context"
	"time"
)

// Cache is a best-effort key/value store. It never reports failures:
// a broken backend reads as a miss and drops writes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set with ttl <= 0 uses the cache's default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Invalidate deletes every key matching each glob pattern.
	Invalidate(ctx context.Context, patterns ...string)
}
