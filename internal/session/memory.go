package session

import (
	"context"
	"sync"

	"contentjobs/internal/apperrors"
)

// MemoryStore is a mutex-guarded in-memory Store for single-process
// deployments. Multi-instance deployments need an external concurrent
// key-value store behind the same interface.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create inserts a session, rejecting with Conflict if the user already has
// an active one. The scan and insert happen under one write lock.
func (m *MemoryStore) Create(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.UserID == sess.UserID && existing.Active() {
			return apperrors.Conflict("session", existing.ID, "user already has an active session")
		}
	}
	if _, exists := m.sessions[sess.ID]; exists {
		return apperrors.Conflict("session", sess.ID, "session id already exists")
	}

	m.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a deep copy of the session.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, exists := m.sessions[id]
	if !exists {
		return nil, apperrors.NotFound("session", id)
	}
	return sess.Clone(), nil
}

// Update applies fn to the live record under the write lock and returns a
// copy of the result. A terminal status set by an earlier update survives any
// later status write, and overall progress never moves backwards.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[id]
	if !exists {
		return nil, apperrors.NotFound("session", id)
	}

	prevStatus := sess.Status
	prevOverall := sess.Snapshot.OverallProgress

	if err := fn(sess); err != nil {
		return nil, err
	}

	if IsTerminal(prevStatus) && sess.Status != prevStatus {
		sess.Status = prevStatus
	}
	if sess.Snapshot.OverallProgress < prevOverall {
		sess.Snapshot.OverallProgress = prevOverall
	}

	return sess.Clone(), nil
}

// Delete removes a session. Deleting an unknown id returns NotFound.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return apperrors.NotFound("session", id)
	}
	delete(m.sessions, id)
	return nil
}

// ListByUser returns copies of all sessions belonging to a user.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, sess := range m.sessions {
		if sess.UserID == userID {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

// List returns copies of all sessions.
func (m *MemoryStore) List(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
