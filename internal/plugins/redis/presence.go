package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// decrScript floors the counter at zero and drops the key when it gets there.
// It returns -1 when there was no counter, 0 on the offline edge and the
// remaining count otherwise.
var decrScript = redis.NewScript(`
local n = redis.call('GET', KEYS[1])
if not n then
	return -1
end
n = tonumber(n)
if n <= 1 then
	redis.call('DEL', KEYS[1])
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// RedisPresenceTracker keeps connection counts in Redis so every process of
// a deployment sees the same per-user count.
type RedisPresenceTracker struct {
	rdb       *redis.Client
	namespace string
}

func NewRedisPresenceTracker(rdb *redis.Client, namespace string) *RedisPresenceTracker {
	return &RedisPresenceTracker{rdb: rdb, namespace: namespace}
}

func (p *RedisPresenceTracker) key(userID string) string {
	return namespaced(p.namespace, "presence:connections:"+userID)
}

func (p *RedisPresenceTracker) MarkConnected(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.Incr(ctx, p.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence incr: %w", err)
	}
	return n == 1, nil
}

func (p *RedisPresenceTracker) MarkDisconnected(ctx context.Context, userID string) (bool, error) {
	n, err := decrScript.Run(ctx, p.rdb, []string{p.key(userID)}).Int64()
	if err != nil {
		return false, fmt.Errorf("presence decr: %w", err)
	}
	return n == 0, nil
}

func (p *RedisPresenceTracker) Count(ctx context.Context, userID string) (int, error) {
	n, err := p.rdb.Get(ctx, p.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}
