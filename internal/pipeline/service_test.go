package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/config"
	"contentjobs/internal/notify"
	"contentjobs/internal/results"
	"contentjobs/internal/session"
	"contentjobs/internal/testutil"
)

type stubExecutor struct {
	steps   int
	execute func(ctx context.Context, stage int, progress func(float64)) (StageResult, error)
}

func (e *stubExecutor) Execute(ctx context.Context, userID string, params json.RawMessage, stage int, progress func(float64)) (StageResult, error) {
	return e.execute(ctx, stage, progress)
}

func (e *stubExecutor) Steps() int { return e.steps }

// instantExecutor completes every stage immediately with a stage-numbered output.
func instantExecutor(steps int) *stubExecutor {
	return &stubExecutor{
		steps: steps,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			progress(50)
			return StageResult{
				Output:       json.RawMessage(fmt.Sprintf(`{"stage":%d}`, stage)),
				QualityScore: 0.9,
			}, nil
		},
	}
}

type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []*notify.Delivery
}

func (r *recordingNotifier) Notify(d *notify.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *recordingNotifier) Stats() notify.Stats          { return notify.Stats{} }
func (r *recordingNotifier) Close(ctx context.Context) error { return nil }

func (r *recordingNotifier) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.deliveries))
	for i, d := range r.deliveries {
		types[i] = d.Event.Type
	}
	return types
}

type testHarness struct {
	svc      *Service
	store    session.Store
	results  *results.MemoryStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, exec StageExecutor, cfg config.PipelineConfig) *testHarness {
	t.Helper()
	store := session.NewMemoryStore()
	res := results.NewMemoryStore()
	rec := &recordingNotifier{}
	svc := NewService(Options{
		Store:    store,
		Reaper:   session.NewReaper(store, config.ReaperConfig{MaxAge: time.Hour, TerminalMaxAge: 10 * time.Minute}),
		Executor: exec,
		Results:  res,
		Notifier: rec,
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Close(ctx)
	})
	return &testHarness{svc: svc, store: store, results: res, notifier: rec}
}

func terminal(t *testing.T, h *testHarness, id string) *session.Session {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		sess, err := h.store.Get(context.Background(), id)
		return err == nil && session.IsTerminal(sess.Status)
	})
	sess, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get after terminal: %v", err)
	}
	return sess
}

func callback() *session.Callback {
	return &session.Callback{URL: "http://callback.example/hook"}
}

func TestPipelineCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, instantExecutor(3), config.PipelineConfig{StageEstimate: 10 * time.Second})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{
		UserID:   "user-1",
		Params:   json.RawMessage(`{"strategy":"balanced"}`),
		Callback: callback(),
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.Status != session.StatusInitializing {
		t.Errorf("initial status = %q, want %q", sess.Status, session.StatusInitializing)
	}
	if got, want := h.svc.EstimatedDuration(), 30*time.Second; got != want {
		t.Errorf("EstimatedDuration = %v, want %v", got, want)
	}

	final := terminal(t, h, sess.ID)
	if final.Status != session.StatusCompleted {
		t.Fatalf("status = %q, want completed (error=%q)", final.Status, final.Error)
	}
	if final.Snapshot.CurrentStep != 3 {
		t.Errorf("current_step = %d, want 3", final.Snapshot.CurrentStep)
	}
	if final.Snapshot.OverallProgress != 100 {
		t.Errorf("overall_progress = %v, want 100", final.Snapshot.OverallProgress)
	}
	if final.EndTime == nil {
		t.Error("EndTime not set on completion")
	}
	if len(final.Snapshot.QualityScores) != 3 {
		t.Errorf("quality scores recorded = %d, want 3", len(final.Snapshot.QualityScores))
	}

	stored, ok := h.results.Get(sess.ID)
	if !ok {
		t.Fatal("final result not persisted")
	}
	if string(stored) != `{"stage":3}` {
		t.Errorf("persisted result = %s, want last stage output", stored)
	}

	testutil.MustWaitFor(t, func() bool { return len(h.notifier.eventTypes()) == 2 })
	types := h.notifier.eventTypes()
	if types[0] != notify.EventTypeStarted || types[1] != notify.EventTypeCompleted {
		t.Errorf("lifecycle events = %v", types)
	}
}

func TestPipelineStageFailure(t *testing.T) {
	t.Parallel()
	exec := &stubExecutor{
		steps: 3,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			if stage == 2 {
				return StageResult{}, apperrors.StageExecution(stage, errors.New("model backend unavailable"))
			}
			return StageResult{Output: json.RawMessage(`{}`), QualityScore: 1}, nil
		},
	}
	h := newHarness(t, exec, config.PipelineConfig{})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1", Callback: callback()})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	final := terminal(t, h, sess.ID)
	if final.Status != session.StatusError {
		t.Fatalf("status = %q, want error", final.Status)
	}
	// Stage 1 completed, stage 2 failed: the failed stage never counts.
	if final.Snapshot.CurrentStep != 1 {
		t.Errorf("current_step = %d, want 1", final.Snapshot.CurrentStep)
	}
	if len(final.Snapshot.Errors) != 1 || final.Snapshot.Errors[0].Stage != 2 {
		t.Errorf("errors = %+v, want one entry for stage 2", final.Snapshot.Errors)
	}
	if final.Error == "" {
		t.Error("session error message not set")
	}

	if _, ok := h.results.Get(sess.ID); ok {
		t.Error("result persisted for a failed session")
	}

	testutil.MustWaitFor(t, func() bool { return len(h.notifier.eventTypes()) == 2 })
	if types := h.notifier.eventTypes(); types[1] != notify.EventTypeFailed {
		t.Errorf("terminal event = %v, want failed", types[1])
	}
}

func TestPipelineCancelMidStage(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	exec := &stubExecutor{
		steps: 3,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			if stage == 1 {
				close(started)
				<-ctx.Done()
				return StageResult{}, ctx.Err()
			}
			return StageResult{Output: json.RawMessage(`{}`)}, nil
		},
	}
	h := newHarness(t, exec, config.PipelineConfig{})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1", Callback: callback()})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	<-started

	cancelled, err := h.svc.Cancel(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != session.StatusCancelled {
		t.Errorf("status after cancel = %q, want cancelled", cancelled.Status)
	}

	final := terminal(t, h, sess.ID)
	if final.Status != session.StatusCancelled {
		t.Errorf("final status = %q, want cancelled", final.Status)
	}
	if len(final.Snapshot.Errors) != 0 {
		t.Errorf("cancellation recorded stage errors: %+v", final.Snapshot.Errors)
	}
	if _, ok := h.results.Get(sess.ID); ok {
		t.Error("result persisted for a cancelled session")
	}

	// Exactly one terminal event.
	testutil.MustWaitFor(t, func() bool { return len(h.notifier.eventTypes()) == 2 })
	if types := h.notifier.eventTypes(); types[1] != notify.EventTypeCancelled {
		t.Errorf("terminal event = %v, want cancelled", types[1])
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, instantExecutor(1), config.PipelineConfig{})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	terminal(t, h, sess.ID)

	for range 2 {
		got, err := h.svc.Cancel(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("Cancel on terminal session failed: %v", err)
		}
		if got.Status != session.StatusCompleted {
			t.Errorf("cancel overwrote terminal status: %q", got.Status)
		}
	}
}

func TestCancelUnknownSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, instantExecutor(1), config.PipelineConfig{})

	_, err := h.svc.Cancel(context.Background(), "no-such-session")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateJobGuard(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	exec := &stubExecutor{
		steps: 1,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return StageResult{}, ctx.Err()
			}
			return StageResult{Output: json.RawMessage(`{}`)}, nil
		},
	}
	h := newHarness(t, exec, config.PipelineConfig{})
	defer close(release)

	first, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("first CreateSession failed: %v", err)
	}

	_, err = h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second create error = %v, want ErrConflict", err)
	}

	// Another user is unaffected.
	if _, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-2"}); err != nil {
		t.Errorf("create for another user failed: %v", err)
	}

	// Once the first session reaches a terminal state the slot frees up.
	if _, err := h.svc.Cancel(context.Background(), first.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	testutil.MustWaitFor(t, func() bool {
		_, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
		return err == nil
	})
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, instantExecutor(1), config.PipelineConfig{})

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing user id", CreateRequest{}},
		{"callback without url", CreateRequest{UserID: "user-1", Callback: &session.Callback{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateSession(context.Background(), tt.req); !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestHardTimeout(t *testing.T) {
	t.Parallel()
	exec := &stubExecutor{
		steps: 1,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			<-ctx.Done()
			return StageResult{}, ctx.Err()
		},
	}
	h := newHarness(t, exec, config.PipelineConfig{HardTimeout: 30 * time.Millisecond})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	final := terminal(t, h, sess.ID)
	if final.Status != session.StatusError {
		t.Fatalf("status = %q, want error", final.Status)
	}
	if len(final.Snapshot.Errors) != 1 {
		t.Fatalf("errors = %+v, want one deadline entry", final.Snapshot.Errors)
	}
}

func TestProgressFlowsThroughStore(t *testing.T) {
	t.Parallel()
	reported := make(chan struct{})
	release := make(chan struct{})
	exec := &stubExecutor{
		steps: 2,
		execute: func(ctx context.Context, stage int, progress func(float64)) (StageResult, error) {
			if stage == 1 {
				progress(40)
				close(reported)
				select {
				case <-release:
				case <-ctx.Done():
					return StageResult{}, ctx.Err()
				}
			}
			return StageResult{Output: json.RawMessage(`{}`)}, nil
		},
	}
	h := newHarness(t, exec, config.PipelineConfig{})

	sess, err := h.svc.CreateSession(context.Background(), CreateRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	<-reported

	// Stage 1 at 40% of a 2-stage pipeline: overall = 20.
	testutil.MustWaitFor(t, func() bool {
		got, err := h.svc.Progress(context.Background(), sess.ID)
		return err == nil && got.Snapshot.OverallProgress == 20
	})
	close(release)

	final := terminal(t, h, sess.ID)
	if final.Snapshot.OverallProgress != 100 {
		t.Errorf("final overall_progress = %v, want 100", final.Snapshot.OverallProgress)
	}
}
