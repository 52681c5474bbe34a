package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chaty/internal/metrics"
	"chaty/pkg/logging"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// RedisCache is a fail-open cache: every backend error reads as a miss or a
// dropped write and is only logged.
type RedisCache struct {
	rdb        *redis.Client
	namespace  string
	defaultTTL time.Duration
	log        *slog.Logger
}

func NewRedisCache(log *slog.Logger, rdb *redis.Client, namespace string, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &RedisCache{
		rdb:        rdb,
		namespace:  namespace,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, namespaced(c.namespace, key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheResults.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.CacheResults.WithLabelValues("error").Inc()
		c.log.Warn("cache - get - failed", "key", key, logging.Err(err))
		return nil, false
	}
	metrics.CacheResults.WithLabelValues("hit").Inc()
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, namespaced(c.namespace, key), value, ttl).Err(); err != nil {
		c.log.Warn("cache - set - failed", "key", key, logging.Err(err))
	}
}

// Invalidate walks the keyspace with SCAN per pattern and deletes each page
// of matches. It is not atomic across patterns.
func (c *RedisCache) Invalidate(ctx context.Context, patterns ...string) {
	for _, pattern := range patterns {
		if err := c.invalidate(ctx, namespaced(c.namespace, pattern)); err != nil {
			c.log.Warn("cache - invalidate - failed", "pattern", pattern, logging.Err(err))
		}
	}
}

func (c *RedisCache) invalidate(ctx context.Context, match string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
