// Package pipeline orchestrates multi-stage content-generation sessions:
// creation with the duplicate-job guard, stage-by-stage execution with
// progress tracking, cooperative cancellation, and result persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/config"
	"contentjobs/internal/notify"
	"contentjobs/internal/results"
	"contentjobs/internal/session"
)

// Metrics receives session lifecycle callbacks. Implementations must be safe
// for concurrent use.
type Metrics interface {
	SessionStarted()
	SessionFinished(status string, duration time.Duration)
}

// Service drives pipeline sessions.
type Service struct {
	store    session.Store
	reaper   *session.Reaper
	executor StageExecutor
	results  results.Store
	notifier notify.Notifier
	cfg      config.PipelineConfig
	logger   *slog.Logger
	metrics  Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// Options holds the service's collaborators. Notifier and Metrics may be nil.
type Options struct {
	Store    session.Store
	Reaper   *session.Reaper
	Executor StageExecutor
	Results  results.Store
	Notifier notify.Notifier
	Config   config.PipelineConfig
	Logger   *slog.Logger
	Metrics  Metrics
}

// NewService creates the orchestrator.
func NewService(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		reaper:   opts.Reaper,
		executor: opts.Executor,
		results:  opts.Results,
		notifier: opts.Notifier,
		cfg:      opts.Config,
		logger:   opts.Logger.With("component", "pipeline"),
		metrics:  opts.Metrics,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// CreateRequest describes a new session.
type CreateRequest struct {
	UserID   string
	Params   json.RawMessage
	Callback *session.Callback
}

// CreateSession registers a new session for the user and starts its pipeline
// in the background. Returns Conflict if the user already has an active
// session.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (*session.Session, error) {
	if req.UserID == "" {
		return nil, apperrors.Validation("userId", "userId is required")
	}
	if req.Callback != nil && req.Callback.URL == "" {
		return nil, apperrors.Validation("callback.url", "callback url is required when a callback is set")
	}

	// Cheap targeted cleanup before the duplicate guard, so a crashed or
	// abandoned session past its retention window cannot block the user.
	s.reaper.ReapUser(ctx, req.UserID)

	sess := &session.Session{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Params:    req.Params,
		Status:    session.StatusInitializing,
		StartTime: time.Now().UTC(),
		Callback:  req.Callback,
		Snapshot:  session.NewSnapshot(s.executor.Steps()),
	}

	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	s.logger.Info("Session created", "session_id", sess.ID, "user_id", sess.UserID, "total_steps", sess.Snapshot.TotalSteps)
	s.notifyLifecycle(sess, notify.EventTypeStarted, nil)

	s.wg.Add(1)
	go s.run(sess.ID, sess.UserID, sess.Params, sess.StartTime)

	return sess.Clone(), nil
}

// EstimatedDuration returns the advisory wall-clock estimate for one session.
func (s *Service) EstimatedDuration() time.Duration {
	return time.Duration(s.executor.Steps()) * s.cfg.StageEstimate
}

// Progress returns a copy of the session's current state.
func (s *Service) Progress(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// Cancel requests cancellation of a session. Already-terminal sessions are
// left untouched and the call succeeds, so cancels are idempotent. Unknown
// sessions return NotFound.
func (s *Service) Cancel(ctx context.Context, sessionID string) (*session.Session, error) {
	var transitioned bool
	sess, err := s.store.Update(ctx, sessionID, func(live *session.Session) error {
		live.CancelRequested = true
		if !session.IsTerminal(live.Status) {
			live.Status = session.StatusCancelled
			now := time.Now().UTC()
			live.EndTime = &now
			transitioned = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Abort the in-flight stage, if any.
	s.mu.Lock()
	cancel := s.cancels[sessionID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if transitioned {
		s.logger.Info("Session cancelled", "session_id", sessionID)
		if s.metrics != nil {
			s.metrics.SessionFinished(session.StatusCancelled, sessionDuration(sess))
		}
		s.notifyLifecycle(sess, notify.EventTypeCancelled, nil)
	}
	return sess, nil
}

// Close waits for in-flight pipelines to observe cancellation and exit, up to
// the context deadline.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) notifyLifecycle(sess *session.Session, eventType string, data map[string]any) {
	if s.notifier == nil || sess.Callback == nil {
		return
	}
	if !notify.Wanted(eventType, sess.Callback.Events) {
		return
	}
	d := &notify.Delivery{
		Event:      notify.NewEvent(eventType, sess.ID, sess.UserID, data),
		URL:        sess.Callback.URL,
		SigningKey: sess.Callback.Key,
	}
	if err := s.notifier.Notify(d); err != nil {
		s.logger.Warn("Failed to queue lifecycle event", "session_id", sess.ID, "event_type", eventType, "error", err)
	}
}

func sessionDuration(sess *session.Session) time.Duration {
	if sess.EndTime != nil {
		return sess.EndTime.Sub(sess.StartTime)
	}
	return time.Since(sess.StartTime)
}
