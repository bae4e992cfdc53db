// Package cache provides a TTL-keyed cache for expensive aggregated datasets,
// with explicit invalidation and hit/miss stats.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores opaque payloads under composite keys with a per-entry TTL.
// TTL is a parameter of every Set, not a global constant: short for
// frequently-changing aggregates, long for expensive analyses.
type Cache interface {
	// Get returns the payload for key, or ok=false on a miss. An expired
	// entry is a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// InvalidatePrefix removes every entry whose key starts with prefix
	// (e.g. all entries for a user, or a user+strategy pair). Returns the
	// number of entries removed.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)

	// CleanupExpired removes entries past their TTL and returns the count.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats returns observability counters.
	Stats(ctx context.Context) (Stats, error)
}

// Stats holds cache observability counters.
type Stats struct {
	Entries int   `json:"entry_count"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Key builds a composite cache key from its parts. Empty parts are skipped so
// Key("agg", userID, "") and Key("agg", userID) collide intentionally: a
// user-level invalidation prefix covers all of that user's strategies.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}
