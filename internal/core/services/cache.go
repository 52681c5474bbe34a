package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"sync"
	"time"

	"chaty/internal/core/contracts"
	"chaty/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// NopCache is wired when no cache backend is configured. Every read misses.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, []byte, time.Duration) {}
func (NopCache) Invalidate(context.Context, ...string)              {}

// CacheReader wraps a Cache with read-through loading. Concurrent misses of
// one key share a single load. A load that overlaps an invalidation still
// answers its callers but never writes its result back.
type CacheReader struct {
	cache contracts.Cache
	group singleflight.Group
	log   *slog.Logger

	mu  sync.RWMutex // held exclusively while invalidating, shared while filling
	gen uint64

	flightMu sync.Mutex
	inflight map[string]int
}

func NewCacheReader(log *slog.Logger, cache contracts.Cache) *CacheReader {
	if cache == nil {
		cache = NopCache{}
	}
	return &CacheReader{cache: cache, log: log, inflight: make(map[string]int)}
}

// Invalidate drops the matching entries and detaches matching in-flight
// loads so later readers start a fresh one.
func (r *CacheReader) Invalidate(ctx context.Context, patterns ...string) {
	r.mu.Lock()
	r.gen++
	r.cache.Invalidate(ctx, patterns...)
	r.mu.Unlock()

	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	for key := range r.inflight {
		for _, p := range patterns {
			if ok, err := path.Match(p, key); ok || err != nil {
				r.group.Forget(key)
				break
			}
		}
	}
}

func (r *CacheReader) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// fill stores raw unless an invalidation ran since gen was read.
func (r *CacheReader) fill(ctx context.Context, gen uint64, key string, raw []byte, ttl time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen != gen {
		return false
	}
	r.cache.Set(ctx, key, raw, ttl)
	return true
}

func (r *CacheReader) track(key string, delta int) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	r.inflight[key] += delta
	if r.inflight[key] <= 0 {
		delete(r.inflight, key)
	}
}

// ReadThrough returns the cached JSON value of key, or calls load and caches
// its result. Load errors propagate; cache problems never do. The shared load
// outlives a cancelled caller; that caller alone gets ctx.Err().
func ReadThrough[T any](
	ctx context.Context,
	r *CacheReader,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if raw, ok := r.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		r.log.Warn("cache - read through - undecodable entry", "key", key)
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		r.track(key, 1)
		defer r.track(key, -1)
		gen := r.generation()
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			r.log.Warn("cache - read through - encode failed", "key", key, logging.Err(err))
			return v, nil
		}
		if !r.fill(loadCtx, gen, key, raw, ttl) {
			r.log.Debug("cache - read through - invalidated while loading", "key", key)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Cache key layout. Every key is relative to the cache namespace.

func conversationListKey(userID string, limit int, search, cursor string) string {
	return fmt.Sprintf("conversations:list:%s:%d:%s:%s", userID, limit, search, cursor)
}

func conversationDetailsKey(convID, userID string) string {
	return "conversations:details:" + convID + ":" + userID
}

func conversationMessagesKey(convID, userID string, limit int, cursor string) string {
	return "conversations:messages:" + convID + ":" + userID + ":" + strconv.Itoa(limit) + ":" + cursor
}

func participantsKey(convID string) string {
	return "conversations:participants:" + convID
}

func presenceKey(userID string) string {
	return "users:presence:" + userID
}

// conversationScope covers every per-conversation view of convID.
func conversationScope(convID string) []string {
	return []string{
		"conversations:details:" + convID + ":*",
		"conversations:messages:" + convID + ":*",
	}
}

// userListScope covers the conversation lists of each distinct user.
func userListScope(userIDs ...string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	patterns := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		patterns = append(patterns, "conversations:list:"+id+":*")
	}
	return patterns
}
