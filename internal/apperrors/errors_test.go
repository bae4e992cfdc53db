package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
	}{
		{"validation", Validation("userId", "userId is required"), ErrValidation, http.StatusBadRequest},
		{"not found", NotFound("session", "abc"), ErrNotFound, http.StatusNotFound},
		{"conflict", Conflict("session", "abc", "user already has an active session"), ErrConflict, http.StatusConflict},
		{"stage execution", StageExecution(2, errors.New("model unavailable")), ErrStageExecution, http.StatusInternalServerError},
		{"internal", Internal("postgres.persist", errors.New("connection refused")), ErrInternal, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.sentinel != nil && !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestStageIndex(t *testing.T) {
	t.Parallel()

	err := StageExecution(3, errors.New("timeout"))
	if got := StageIndex(err); got != 3 {
		t.Errorf("StageIndex() = %d, want 3", got)
	}
	if got := StageIndex(errors.New("plain")); got != 0 {
		t.Errorf("StageIndex(plain) = %d, want 0", got)
	}

	wrapped := fmt.Errorf("pipeline: %w", err)
	if got := StageIndex(wrapped); got != 3 {
		t.Errorf("StageIndex(wrapped) = %d, want 3", got)
	}
}

func TestNotFoundMessage(t *testing.T) {
	t.Parallel()
	err := NotFound("session", "sess-1")
	if err.Error() != "session sess-1 not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
