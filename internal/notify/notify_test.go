package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"contentjobs/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		BufferSize:  16,
		Workers:     2,
		HTTPTimeout: 2 * time.Second,
		MaxRetries:  3,
		MaxRequeues: 2,
	}
}

func TestDeliverySendsSignedEvent(t *testing.T) {
	t.Parallel()

	var gotType, gotSig atomic.Value
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType.Store(r.Header.Get("X-Event-Type"))
		gotSig.Store(r.Header.Get("X-Signature-256"))
		b, _ := io.ReadAll(r.Body)
		body.Store(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewQueueNotifier(testConfig(), testLogger(), nil)
	defer n.Close(context.Background())

	event := NewEvent(EventTypeCompleted, "sess-1", "user-1", map[string]any{"durationSeconds": 12})
	if err := n.Notify(&Delivery{Event: event, URL: srv.URL, SigningKey: "secret"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return n.Stats().Delivered == 1 })

	if got := gotType.Load(); got != EventTypeCompleted {
		t.Errorf("X-Event-Type = %v, want %v", got, EventTypeCompleted)
	}
	wantSig := Signature(body.Load().([]byte), "secret")
	if got := gotSig.Load(); got != wantSig {
		t.Errorf("X-Signature-256 = %v, want %v", got, wantSig)
	}
}

func TestDeliveryRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewQueueNotifier(testConfig(), testLogger(), nil)
	defer n.Close(context.Background())

	event := NewEvent(EventTypeFailed, "sess-2", "user-1", nil)
	if err := n.Notify(&Delivery{Event: event, URL: srv.URL}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return n.Stats().Delivered == 1 })

	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
	if got := n.Stats().RetriesTotal; got != 2 {
		t.Errorf("RetriesTotal = %d, want 2", got)
	}
}

func TestDeliveryDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewQueueNotifier(testConfig(), testLogger(), nil)
	defer n.Close(context.Background())

	event := NewEvent(EventTypeStarted, "sess-3", "user-1", nil)
	if err := n.Notify(&Delivery{Event: event, URL: srv.URL}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return n.Stats().Failed == 1 })

	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BufferSize = 1
	cfg.Workers = 1

	// Block the only worker so the queue backs up.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	n := NewQueueNotifier(cfg, testLogger(), nil)
	defer n.Close(context.Background())

	event := NewEvent(EventTypeStarted, "sess-4", "user-1", nil)

	// First delivery occupies the worker, second fills the buffer.
	n.Notify(&Delivery{Event: event, URL: srv.URL})
	testutil.MustWaitFor(t, func() bool { return n.Stats().QueueDepth == 0 })
	n.Notify(&Delivery{Event: event, URL: srv.URL})

	if err := n.Notify(&Delivery{Event: event, URL: srv.URL}); err != ErrBufferFull {
		t.Errorf("Notify error = %v, want ErrBufferFull", err)
	}
	if got := n.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestCircuitOpensForFailingDestination(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testConfig()
	n := NewQueueNotifier(cfg, testLogger(), nil)
	defer n.Close(context.Background())

	// Default breaker threshold is 5 consecutive failures.
	for i := range 5 {
		event := NewEvent(EventTypeFailed, "sess-5", "user-1", map[string]any{"n": i})
		n.Notify(&Delivery{Event: event, URL: srv.URL})
		testutil.MustWaitFor(t, func() bool { return n.Stats().Failed == int64(i+1) })
	}

	if got := n.Stats().BreakersOpen; got != 1 {
		t.Errorf("BreakersOpen = %d, want 1", got)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewQueueNotifier(testConfig(), testLogger(), nil)
	for i := range 5 {
		event := NewEvent(EventTypeCompleted, "sess-6", "user-1", map[string]any{"n": i})
		if err := n.Notify(&Delivery{Event: event, URL: srv.URL}); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := calls.Load(); got != 5 {
		t.Errorf("server calls = %d, want 5", got)
	}
	if err := n.Notify(&Delivery{Event: NewEvent(EventTypeStarted, "s", "u", nil), URL: srv.URL}); err != ErrBufferFull {
		t.Errorf("Notify after Close error = %v, want ErrBufferFull", err)
	}
}

func TestWanted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventType string
		filter    []string
		want      bool
	}{
		{"empty filter allows all", EventTypeStarted, nil, true},
		{"matching filter", EventTypeCompleted, []string{EventTypeCompleted}, true},
		{"non-matching filter", EventTypeFailed, []string{EventTypeCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Wanted(tt.eventType, tt.filter); got != tt.want {
				t.Errorf("Wanted(%q, %v) = %v, want %v", tt.eventType, tt.filter, got, tt.want)
			}
		})
	}
}
