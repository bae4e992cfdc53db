package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/notify"
	"contentjobs/internal/session"
)

// run executes the pipeline for one session. It is the only goroutine that
// advances the session through its stages; cancellation reaches it through
// the store flag (checked between stages) and the registered context cancel
// (aborting the in-flight stage).
func (s *Service) run(sessionID, userID string, params json.RawMessage, startTime time.Time) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	if s.cfg.HardTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.HardTimeout)
	}
	defer cancel()

	s.mu.Lock()
	s.cancels[sessionID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, sessionID)
		s.mu.Unlock()
	}()

	logger := s.logger.With("session_id", sessionID, "user_id", userID)

	if _, err := s.store.Update(ctx, sessionID, func(live *session.Session) error {
		live.Status = session.StatusRunning
		return nil
	}); err != nil {
		// Session reaped or cancelled-and-removed before the runner started.
		logger.Warn("Session vanished before start", "error", err)
		return
	}

	steps := s.executor.Steps()
	var lastOutput json.RawMessage

	for stage := 1; stage <= steps; stage++ {
		if s.cancelled(sessionID) {
			logger.Info("Pipeline stopped between stages", "stage", stage)
			return
		}

		result, err := s.executeStage(ctx, sessionID, userID, params, stage)
		if err != nil {
			if s.cancelled(sessionID) {
				logger.Info("Stage aborted by cancellation", "stage", stage)
				return
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = apperrors.StageExecution(stage, errors.New("pipeline hard timeout exceeded"))
			}
			s.failSession(sessionID, stage, err, startTime)
			return
		}

		lastOutput = result.Output
		if _, err := s.store.Update(ctx, sessionID, func(live *session.Session) error {
			live.Snapshot.CompleteStage(stage, result.Output, result.QualityScore, result.Warnings)
			return nil
		}); err != nil {
			logger.Warn("Session vanished mid-pipeline", "stage", stage, "error", err)
			return
		}
		logger.Info("Stage completed", "stage", stage, "quality_score", result.QualityScore)
	}

	s.completeSession(sessionID, userID, lastOutput, startTime)
}

// executeStage runs one stage, wiring intra-stage progress back into the
// snapshot. Progress writes go through the store so readers always see them.
func (s *Service) executeStage(ctx context.Context, sessionID, userID string, params json.RawMessage, stage int) (StageResult, error) {
	progress := func(pct float64) {
		s.store.Update(context.Background(), sessionID, func(live *session.Session) error {
			live.Snapshot.SetStepProgress(pct)
			return nil
		})
	}
	return s.executor.Execute(ctx, userID, params, stage, progress)
}

func (s *Service) failSession(sessionID string, stage int, stageErr error, startTime time.Time) {
	now := time.Now().UTC()
	sess, err := s.store.Update(context.Background(), sessionID, func(live *session.Session) error {
		if session.IsTerminal(live.Status) {
			return nil
		}
		live.Snapshot.RecordError(stage, stageErr.Error())
		live.Status = session.StatusError
		live.Error = stageErr.Error()
		live.EndTime = &now
		return nil
	})
	if err != nil {
		return
	}
	// A cancel that won the race keeps its terminal status; don't double-report.
	if sess.Status != session.StatusError {
		return
	}

	s.logger.Error("Pipeline failed", "session_id", sessionID, "stage", stage, "error", stageErr)
	if s.metrics != nil {
		s.metrics.SessionFinished(session.StatusError, now.Sub(startTime))
	}
	s.notifyLifecycle(sess, notify.EventTypeFailed, map[string]any{
		"stage": stage,
		"error": stageErr.Error(),
	})
}

func (s *Service) completeSession(sessionID, userID string, finalOutput json.RawMessage, startTime time.Time) {
	now := time.Now().UTC()
	sess, err := s.store.Update(context.Background(), sessionID, func(live *session.Session) error {
		if session.IsTerminal(live.Status) {
			return nil
		}
		live.Status = session.StatusCompleted
		live.EndTime = &now
		return nil
	})
	if err != nil {
		return
	}
	// If a cancel landed after the last stage finished, its terminal status
	// wins and the result is not persisted.
	if sess.Status != session.StatusCompleted {
		return
	}

	if err := s.results.Persist(context.Background(), sessionID, userID, finalOutput); err != nil {
		s.logger.Error("Failed to persist result", "session_id", sessionID, "error", err)
	}

	duration := now.Sub(startTime)
	s.logger.Info("Pipeline completed", "session_id", sessionID, "duration", duration)
	if s.metrics != nil {
		s.metrics.SessionFinished(session.StatusCompleted, duration)
	}
	s.notifyLifecycle(sess, notify.EventTypeCompleted, map[string]any{
		"durationSeconds": duration.Seconds(),
	})
}

// cancelled reports whether the session was cancelled or otherwise reached a
// terminal state out from under the runner.
func (s *Service) cancelled(sessionID string) bool {
	sess, err := s.store.Get(context.Background(), sessionID)
	if err != nil {
		return true // reaped; nothing left to run for
	}
	return sess.CancelRequested || session.IsTerminal(sess.Status)
}
