package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"contentjobs/internal/config"
	"contentjobs/internal/session"
)

// SessionReader supplies progress snapshots to the gateway.
type SessionReader interface {
	Progress(ctx context.Context, sessionID string) (*session.Session, error)
}

// Metrics receives stream lifecycle callbacks.
type Metrics interface {
	StreamOpened()
	StreamClosed()
}

// Streamer serves SSE progress streams by polling the session store.
type Streamer struct {
	sessions SessionReader
	cfg      config.StreamConfig
	logger   *slog.Logger
	metrics  Metrics
}

// NewStreamer creates the gateway. metrics may be nil.
func NewStreamer(sessions SessionReader, cfg config.StreamConfig, logger *slog.Logger, metrics Metrics) *Streamer {
	return &Streamer{
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "stream"),
		metrics:  metrics,
	}
}

// Serve streams a session's progress until it reaches a terminal state or the
// client disconnects. The caller must have verified the session exists; once
// the stream is open every fault is delivered as a terminal error frame on
// the stream itself.
func (s *Streamer) Serve(ctx context.Context, sessionID string, w http.ResponseWriter) error {
	sw, err := NewWriter(w)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	// The stream is committed: a panic below must surface on the stream, not
	// escape through the transport.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in stream", "session_id", sessionID, "panic", r)
			sw.Send(ErrorEvent(sessionID, "internal stream failure", nil))
		}
	}()

	sess, err := s.sessions.Progress(ctx, sessionID)
	if err != nil {
		sw.Send(ErrorEvent(sessionID, "session no longer available", nil))
		return nil
	}

	if err := sw.Send(StatusEvent(sess)); err != nil {
		return err
	}

	hb := NewHeartbeat(s.cfg.HeartbeatStep, s.cfg.HeartbeatCeiling)
	display := hb.Observe(sess.Snapshot.OverallProgress)
	if err := sw.Send(ProgressEvent(sess, display, false)); err != nil {
		return err
	}
	if session.IsTerminal(sess.Status) {
		return sw.Send(terminalEvent(sess))
	}

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	beat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer beat.Stop()

	lastUpdated := sess.Snapshot.LastUpdated

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poll.C:
			fresh, err := s.sessions.Progress(ctx, sessionID)
			if err != nil {
				sw.Send(ErrorEvent(sessionID, "session no longer available", nil))
				return nil
			}
			sess = fresh

			if session.IsTerminal(sess.Status) {
				display = hb.Observe(sess.Snapshot.OverallProgress)
				if err := sw.Send(ProgressEvent(sess, display, false)); err != nil {
					return err
				}
				return sw.Send(terminalEvent(sess))
			}

			if sess.Snapshot.LastUpdated.After(lastUpdated) {
				lastUpdated = sess.Snapshot.LastUpdated
				display = hb.Observe(sess.Snapshot.OverallProgress)
				if err := sw.Send(ProgressEvent(sess, display, false)); err != nil {
					return err
				}
				// Fresh authoritative data resets the liveness clock.
				beat.Reset(s.cfg.HeartbeatInterval)
			}

		case <-beat.C:
			display = hb.Tick()
			if err := sw.Send(ProgressEvent(sess, display, true)); err != nil {
				return err
			}
		}
	}
}

// terminalEvent selects the closing frame for a terminal session.
func terminalEvent(sess *session.Session) Event {
	switch sess.Status {
	case session.StatusCompleted:
		return ResultEvent(sess)
	case session.StatusError:
		msg := sess.Error
		if msg == "" {
			msg = "pipeline failed"
		}
		snap := sess.Snapshot.Clone()
		return ErrorEvent(sess.ID, msg, &snap)
	default:
		return StatusEvent(sess)
	}
}
