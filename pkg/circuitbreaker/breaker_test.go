package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Hour})

	for range 2 {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Error("breaker opened before threshold")
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open breaker allowed a request")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("open breaker allowed a request")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker did not half-open after cooldown")
	}
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want half-open", b.State())
	}

	// Failure during the probe re-opens immediately.
	b.RecordFailure()
	if b.State() != Open {
		t.Errorf("state after half-open failure = %v, want open", b.State())
	}
}

func TestBreakerSuccessCloses(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordSuccess()

	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("failures = %d, want 0", b.Failures())
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Hour})

	a := r.Get("host-a")
	if got := r.Get("host-a"); got != a {
		t.Error("Get returned a different breaker for the same key")
	}

	r.Get("host-b").RecordFailure()

	stats := r.Stats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Open != 1 {
		t.Errorf("Open = %d, want 1", stats.Open)
	}
	if stats.Closed != 1 {
		t.Errorf("Closed = %d, want 1", stats.Closed)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	if Closed.String() != "closed" || Open.String() != "open" || HalfOpen.String() != "half-open" {
		t.Error("unexpected state strings")
	}
}
