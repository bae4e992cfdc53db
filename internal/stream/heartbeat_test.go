package stream

import "testing"

func TestHeartbeatTickAdvances(t *testing.T) {
	t.Parallel()
	hb := NewHeartbeat(3, 90)

	hb.Observe(10)
	if got := hb.Tick(); got != 13 {
		t.Errorf("Tick = %v, want 13", got)
	}
	if got := hb.Tick(); got != 16 {
		t.Errorf("Tick = %v, want 16", got)
	}
}

func TestHeartbeatStaysBelowCeiling(t *testing.T) {
	t.Parallel()
	hb := NewHeartbeat(3, 90)
	hb.Observe(88)

	for range 10 {
		if got := hb.Tick(); got >= 90 {
			t.Fatalf("Tick = %v, reached the ceiling", got)
		}
	}
	if got := hb.Display(); got != 89 {
		t.Errorf("Display = %v, want 89", got)
	}
}

func TestHeartbeatNeverRegresses(t *testing.T) {
	t.Parallel()
	hb := NewHeartbeat(3, 90)

	hb.Observe(50)
	hb.Tick() // 53

	// Authoritative value below the displayed one is floored.
	if got := hb.Observe(51); got != 53 {
		t.Errorf("Observe(51) = %v, want 53", got)
	}

	// A higher authoritative value takes over.
	if got := hb.Observe(70); got != 70 {
		t.Errorf("Observe(70) = %v, want 70", got)
	}
}

func TestHeartbeatObserveAboveCeiling(t *testing.T) {
	t.Parallel()
	hb := NewHeartbeat(3, 90)

	// Completion may push authoritative progress past the synthetic ceiling.
	if got := hb.Observe(100); got != 100 {
		t.Errorf("Observe(100) = %v, want 100", got)
	}
}
