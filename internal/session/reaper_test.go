package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/config"
)

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		MaxAge:         time.Hour,
		TerminalMaxAge: 10 * time.Minute,
	}
}

func TestReaperRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().UTC()

	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	end := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name   string
		sess   *Session
		reaped bool
	}{
		{
			name:   "fresh running session survives",
			sess:   &Session{ID: "a", UserID: "u1", Status: StatusRunning, StartTime: ago(5 * time.Minute)},
			reaped: false,
		},
		{
			name:   "running session past max age goes",
			sess:   &Session{ID: "b", UserID: "u1", Status: StatusRunning, StartTime: ago(2 * time.Hour)},
			reaped: true,
		},
		{
			name: "completed session older than terminal age goes",
			sess: &Session{ID: "c", UserID: "u1", Status: StatusCompleted,
				StartTime: ago(30 * time.Minute), EndTime: end(ago(15 * time.Minute))},
			reaped: true,
		},
		{
			name: "recently completed session survives",
			sess: &Session{ID: "d", UserID: "u1", Status: StatusCompleted,
				StartTime: ago(30 * time.Minute), EndTime: end(ago(2 * time.Minute))},
			reaped: false,
		},
		{
			name: "cancelled session without end time uses start time",
			sess: &Session{ID: "e", UserID: "u1", Status: StatusCancelled,
				StartTime: ago(20 * time.Minute)},
			reaped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := NewMemoryStore()
			// Insert directly; some fixtures are terminal and Create's guard
			// only blocks active duplicates anyway.
			store.sessions[tt.sess.ID] = tt.sess

			r := NewReaper(store, testReaperConfig())
			r.now = func() time.Time { return now }

			r.ReapUser(ctx, "u1")

			_, err := store.Get(ctx, tt.sess.ID)
			gone := errors.Is(err, apperrors.ErrNotFound)
			if gone != tt.reaped {
				t.Errorf("reaped = %v, want %v", gone, tt.reaped)
			}
		})
	}
}

func TestReapAllScopesEveryUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()

	stale := &Session{ID: "old", UserID: "u1", Status: StatusRunning, StartTime: now.Add(-2 * time.Hour)}
	fresh := &Session{ID: "new", UserID: "u2", Status: StatusRunning, StartTime: now.Add(-time.Minute)}
	store.sessions[stale.ID] = stale
	store.sessions[fresh.ID] = fresh

	r := NewReaper(store, testReaperConfig())
	r.now = func() time.Time { return now }

	if removed := r.ReapAll(ctx); removed != 1 {
		t.Errorf("ReapAll removed %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("fresh session was reaped: %v", err)
	}
}
