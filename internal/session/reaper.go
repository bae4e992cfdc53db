package session

import (
	"context"
	"log/slog"
	"time"

	"contentjobs/internal/config"
)

// Reaper removes stale sessions from the store. It bounds memory growth of
// the in-memory store; admission control still checks live state first, so
// reaping is never load-bearing for the duplicate-job guard.
type Reaper struct {
	store  Store
	cfg    config.ReaperConfig
	logger *slog.Logger
	now    func() time.Time // overridable in tests
}

// NewReaper creates a reaper over the given store.
func NewReaper(store Store, cfg config.ReaperConfig) *Reaper {
	return &Reaper{
		store:  store,
		cfg:    cfg,
		logger: slog.With("component", "reaper"),
		now:    time.Now,
	}
}

// ReapUser removes the requesting user's stale sessions. Called at the start
// of every create so the cheap, targeted pass happens on the hot path.
func (r *Reaper) ReapUser(ctx context.Context, userID string) int {
	sessions, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		r.logger.Warn("Failed to list sessions for reaping", "userId", userID, "error", err)
		return 0
	}
	return r.reap(ctx, sessions)
}

// ReapAll sweeps the whole store. Returns the number of sessions removed.
func (r *Reaper) ReapAll(ctx context.Context) int {
	sessions, err := r.store.List(ctx)
	if err != nil {
		r.logger.Warn("Failed to list sessions for reaping", "error", err)
		return 0
	}
	return r.reap(ctx, sessions)
}

// Run sweeps the store on a timer until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.ReapAll(ctx); removed > 0 {
				r.logger.Info("Reaped stale sessions", "removed", removed)
			}
		}
	}
}

func (r *Reaper) reap(ctx context.Context, sessions []*Session) int {
	now := r.now()
	removed := 0
	for _, sess := range sessions {
		if !r.stale(sess, now) {
			continue
		}
		if err := r.store.Delete(ctx, sess.ID); err != nil {
			continue // already gone, racing with another reap
		}
		removed++
	}
	return removed
}

// stale applies the two retention rules: any session past MaxAge goes
// regardless of status; terminal sessions go after TerminalMaxAge.
func (r *Reaper) stale(sess *Session, now time.Time) bool {
	if now.Sub(sess.StartTime) > r.cfg.MaxAge {
		return true
	}
	if !IsTerminal(sess.Status) {
		return false
	}
	endedAt := sess.StartTime
	if sess.EndTime != nil {
		endedAt = *sess.EndTime
	}
	return now.Sub(endedAt) > r.cfg.TerminalMaxAge
}
