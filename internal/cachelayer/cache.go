// Package cachelayer is the Redis-backed read cache sitting in front
// of the fast store, grounded on the teacher pack's redis.NewClient
// connection-pooling idiom (see pkg/cache in the wider corpus) and
// extended here with JSON marshaling and pattern-based invalidation.
package cachelayer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"examhub/pkg/metrics"
)

// TTLs for the cache keys the engine writes through. CacheTTLUpcoming
// applies to a contact's booking list filtered to "upcoming"; session
// list, detail and aggregate keys use their own 120s TTLs; every other
// key uses CacheTTLDefault.
const (
	CacheTTLUpcoming    = 30 * time.Second
	CacheTTLDefault     = 180 * time.Second
	SessionListTTL      = 120 * time.Second
	SessionDetailTTL    = 120 * time.Second
	SessionAggregateTTL = 120 * time.Second
)

// Cache is the read-through/invalidate-on-write interface the engine
// depends on. The in-process variant (InMemoryCache, in fake.go) is only safe for
// single-instance deployments; production deployments use Redis.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

// RedisCache is the production Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	prefix := keyPrefix(key)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.CacheMissesTotal.WithLabelValues(prefix).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cachelayer: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cachelayer: unmarshal %s: %w", key, err)
	}
	metrics.CacheHitsTotal.WithLabelValues(prefix).Inc()
	return true, nil
}

// keyPrefix extracts the leading colon-delimited segment of a cache
// key for metric cardinality, e.g. "bookings:contact:<id>:upcoming"
// becomes "bookings".
func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cachelayer: marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cachelayer: set %s: %w", key, err)
	}
	return nil
}

// DeletePattern scans for keys matching pattern and deletes them in
// batches. A SCAN-then-UNLINK pair is used instead of KEYS so
// invalidation never blocks the Redis event loop on a large keyspace.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("cachelayer: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cachelayer: unlink for %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// InvalidateWrite invalidates every key family a booking or session
// write can affect. Callers treat a failure here as non-fatal: it is
// logged and swallowed, per the engine's fallback policy.
func InvalidateWrite(ctx context.Context, c Cache, contactID, sessionID string) {
	patterns := []string{
		fmt.Sprintf("bookings:contact:%s:*", contactID),
		fmt.Sprintf("session:%s:*", sessionID),
		"sessions:list:*",
		"sessions:aggregates:*",
	}
	for _, p := range patterns {
		if err := c.DeletePattern(ctx, p); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("pattern", p).Msg("cachelayer: invalidation failed, swallowing")
		}
	}
}
