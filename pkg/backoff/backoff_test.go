package backoff

import (
	"testing"
	"time"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		attempt int
		cfg     *Config
		want    time.Duration
	}{
		{"attempt 0 returns initial", 0, nil, 100 * time.Millisecond},
		{"attempt 1 returns initial", 1, nil, 100 * time.Millisecond},
		{"attempt 2 doubles", 2, nil, 200 * time.Millisecond},
		{"attempt 3 quadruples", 3, nil, 400 * time.Millisecond},
		{"capped at max", 10, nil, 5 * time.Second},
		{"custom config", 2, &Config{Initial: time.Second, Max: 10 * time.Second}, 2 * time.Second},
		{"custom cap", 5, &Config{Initial: time.Second, Max: 3 * time.Second}, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Exponential(tt.attempt, tt.cfg); got != tt.want {
				t.Errorf("Exponential(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestJitteredBounds(t *testing.T) {
	t.Parallel()

	for range 100 {
		got := Jittered(2, nil)
		base := 200 * time.Millisecond
		if got < base || got > base+base/4 {
			t.Fatalf("Jittered(2) = %v, want within [%v, %v]", got, base, base+base/4)
		}
	}
}
