// Package notify provides async delivery of session lifecycle webhooks with
// buffering, retry, and per-destination circuit breaking.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Event types for session lifecycle webhooks.
const (
	EventTypeStarted   = "contentjobs.session.started"
	EventTypeCompleted = "contentjobs.session.completed"
	EventTypeFailed    = "contentjobs.session.failed"
	EventTypeCancelled = "contentjobs.session.cancelled"
)

// ErrBufferFull is returned when the notifier's buffer is full and the
// delivery is dropped.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

// Event is one session lifecycle notification.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Time      time.Time      `json:"time"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates a lifecycle event for a session.
func NewEvent(eventType, sessionID, userID string, data map[string]any) *Event {
	return &Event{
		ID:        fmt.Sprintf("%s-%d", sessionID, time.Now().UnixNano()),
		Type:      eventType,
		SessionID: sessionID,
		UserID:    userID,
		Time:      time.Now().UTC(),
		Data:      data,
	}
}

// Wanted returns true if the event type passes the subscriber's filter.
// An empty filter allows all events.
func Wanted(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// Delivery is an event bound for a destination.
type Delivery struct {
	Event      *Event
	URL        string
	SigningKey string // HMAC key for signing, empty = no signing
	Requeues   int    // times requeued due to an open circuit (internal use)
}

// Notifier handles async delivery of lifecycle events.
type Notifier interface {
	// Notify queues a delivery. Non-blocking.
	// Returns ErrBufferFull if the delivery cannot be queued.
	Notify(d *Delivery) error

	// Stats returns current notifier statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to deliver queued events.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth    int   // current queue size
	Queued        int64 // total deliveries queued
	Delivered     int64 // successful deliveries
	Failed        int64 // failed after retries
	Dropped       int64 // dropped due to full buffer or max requeues
	Requeued      int64 // requeued due to an open circuit
	RetriesTotal  int64 // total retry attempts
	BreakersTotal int   // total circuit breakers
	BreakersOpen  int   // currently open breakers
}
