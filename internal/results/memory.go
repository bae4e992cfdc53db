package results

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps final results in memory. Suitable for single-instance
// deployments and tests; results do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]json.RawMessage),
	}
}

// Persist stores the final result for a session.
func (m *MemoryStore) Persist(ctx context.Context, sessionID, userID string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sessionID] = append(json.RawMessage(nil), result...)
	return nil
}

// Get returns the persisted result for a session, if any.
func (m *MemoryStore) Get(sessionID string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[sessionID]
	return result, ok
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
