// Package session defines the session record, its progress snapshot, and the
// store that holds live sessions.
package session

import (
	"encoding/json"
	"time"
)

// Status values for a session. Transitions are one-directional:
// initializing -> running -> {completed, error, cancelled}. Terminal states
// are immutable once set.
const (
	StatusInitializing = "initializing"
	StatusRunning      = "running"
	StatusCompleted    = "completed"
	StatusError        = "error"
	StatusCancelled    = "cancelled"
)

// IsTerminal reports whether a status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Callback configures lifecycle webhooks for a session.
type Callback struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
	Key    string   `json:"key,omitempty"` // HMAC signing key
}

// Session is one invocation of the multi-stage pipeline for one user.
// It is mutated only by the goroutine running that session's pipeline (plus
// the cancel flag); all other access goes through snapshot copies.
type Session struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Params          json.RawMessage  `json:"params,omitempty"` // opaque, passed to the stage executor
	Status          string           `json:"status"`
	StartTime       time.Time        `json:"startTime"`
	EndTime         *time.Time       `json:"endTime,omitempty"`
	Error           string           `json:"error,omitempty"`
	CancelRequested bool             `json:"-"`
	Callback        *Callback        `json:"-"`
	Snapshot        ProgressSnapshot `json:"progress"`
}

// Active reports whether the session still occupies the user's single
// active-session slot.
func (s *Session) Active() bool {
	return s.Status == StatusInitializing || s.Status == StatusRunning
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Session) Clone() *Session {
	c := *s
	c.Snapshot = s.Snapshot.Clone()
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Callback != nil {
		cb := *s.Callback
		cb.Events = append([]string(nil), s.Callback.Events...)
		c.Callback = &cb
	}
	if s.Params != nil {
		c.Params = append(json.RawMessage(nil), s.Params...)
	}
	return &c
}
