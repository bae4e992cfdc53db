// Package aggregate memoizes expensive aggregated datasets through the cache.
// It is the caller side of the cache contract: consult the cache, compute on
// miss, store with the caller-supplied TTL.
package aggregate

import (
	"context"
	"log/slog"
	"time"

	"contentjobs/internal/cache"
)

// ComputeFunc produces the aggregated payload on a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Options controls one Load call.
type Options struct {
	TTL          time.Duration // required; TTL is per-call, not global
	ForceRefresh bool          // bypass the cache read and always recompute
}

// Loader wraps a Cache with get-or-compute semantics.
type Loader struct {
	cache  cache.Cache
	logger *slog.Logger
}

// NewLoader creates a loader over the given cache.
func NewLoader(c cache.Cache) *Loader {
	return &Loader{
		cache:  c,
		logger: slog.With("component", "aggregate"),
	}
}

// Load returns the cached payload for key, computing and storing it on a miss
// or when opts.ForceRefresh is set. The second return reports whether the
// value came from the cache.
func (l *Loader) Load(ctx context.Context, key string, opts Options, compute ComputeFunc) ([]byte, bool, error) {
	if !opts.ForceRefresh {
		value, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			// A broken cache degrades to recompute, never to request failure.
			l.logger.Warn("Cache read failed, recomputing", "key", key, "error", err)
		} else if ok {
			return value, true, nil
		}
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := l.cache.Set(ctx, key, value, opts.TTL); err != nil {
		l.logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return value, false, nil
}

// InvalidateUser drops every cached aggregate for a user, optionally scoped
// to one strategy.
func (l *Loader) InvalidateUser(ctx context.Context, userID, strategyID string) (int, error) {
	return l.cache.InvalidatePrefix(ctx, UserKey(userID, strategyID))
}

// CleanupExpired removes entries past their TTL and returns the count.
func (l *Loader) CleanupExpired(ctx context.Context) (int, error) {
	return l.cache.CleanupExpired(ctx)
}

// Stats returns the underlying cache's observability counters.
func (l *Loader) Stats(ctx context.Context) (cache.Stats, error) {
	return l.cache.Stats(ctx)
}

// UserKey builds the composite key for a user's aggregated dataset.
func UserKey(userID, strategyID string) string {
	return cache.Key("agg", userID, strategyID)
}
