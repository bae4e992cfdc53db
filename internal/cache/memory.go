package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// entry is one cached payload with its expiry window.
type entry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
	hitCount  int64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Memory is a mutex-guarded in-memory Cache for single-process deployments.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time // overridable in tests
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the payload for key. Expired entries count as misses and are
// dropped lazily.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		m.misses.Add(1)
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		// Re-check under the write lock; a Set may have replaced the entry.
		if cur, ok := m.entries[key]; ok && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, false, nil
	}

	m.hits.Add(1)
	atomic.AddInt64(&e.hitCount, 1)
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value under key for ttl, replacing any existing entry.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{
		value:     append([]byte(nil), value...),
		createdAt: m.now(),
		ttl:       ttl,
	}
	return nil
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (m *Memory) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// CleanupExpired removes entries past their TTL.
func (m *Memory) CleanupExpired(ctx context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Stats returns current counters.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	entries := len(m.entries)
	m.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

// Verify Memory implements Cache
var _ Cache = (*Memory)(nil)
