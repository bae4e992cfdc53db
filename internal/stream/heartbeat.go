package stream

// Heartbeat tracks the displayed progress percentage for one stream. While no
// fresh authoritative value arrives, ticks nudge the displayed value upward so
// the client sees liveness; the synthetic value stays below the ceiling and
// the displayed value never regresses, even when the authoritative value is
// lower than what was already shown.
type Heartbeat struct {
	step    float64
	ceiling float64
	display float64
}

// NewHeartbeat creates a heartbeat with the given per-tick step and ceiling.
func NewHeartbeat(step, ceiling float64) *Heartbeat {
	return &Heartbeat{step: step, ceiling: ceiling}
}

// Observe folds in an authoritative progress value and returns the value to
// display. Authoritative values may exceed the ceiling (completion reaches
// 100); they are only floored against what was already displayed.
func (h *Heartbeat) Observe(authoritative float64) float64 {
	if authoritative > h.display {
		h.display = authoritative
	}
	return h.display
}

// Tick advances the synthetic value by one step, capped below the ceiling,
// and returns the value to display.
func (h *Heartbeat) Tick() float64 {
	next := h.display + h.step
	if next >= h.ceiling {
		next = h.ceiling - 1
	}
	if next > h.display {
		h.display = next
	}
	return h.display
}

// Display returns the current displayed value.
func (h *Heartbeat) Display() float64 {
	return h.display
}
