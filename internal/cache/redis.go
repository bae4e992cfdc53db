package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisNamespace prefixes every key so a shared Redis can host other data.
const redisNamespace = "aggcache:"

// Redis is a Cache backed by a Redis server. Expiry is delegated to Redis
// (SET with TTL), so CleanupExpired is a no-op kept for interface parity.
// Hit/miss counters are process-local.
type Redis struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis connects to the Redis at url and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Ready reports whether the Redis server is reachable.
func (r *Redis) Ready(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the payload for key, or ok=false if absent or expired.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, redisNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	r.hits.Add(1)
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, redisNamespace+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidatePrefix scans for namespaced keys matching prefix and deletes them.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, redisNamespace+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

// CleanupExpired is a no-op: Redis evicts expired keys itself.
func (r *Redis) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Stats counts namespaced keys and returns process-local hit/miss counters.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	var entries int
	iter := r.client.Scan(ctx, 0, redisNamespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("redis scan: %w", err)
	}

	return Stats{
		Entries: entries,
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}, nil
}

// Verify Redis implements Cache
var _ Cache = (*Redis)(nil)
