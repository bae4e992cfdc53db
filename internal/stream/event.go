// Package stream serves session progress over Server-Sent Events, layering a
// synthetic liveness heartbeat on top of the authoritative snapshot.
package stream

import (
	"encoding/json"

	"contentjobs/internal/session"
)

// Frame types emitted on the SSE stream.
const (
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

// Event is one SSE frame. All frame types share this shape; Type selects
// which fields are populated, and Marshal is the single place frames turn
// into bytes.
type Event struct {
	Type      string                    `json:"type"`
	SessionID string                    `json:"sessionId,omitempty"`
	Status    string                    `json:"status,omitempty"`
	Progress  *session.ProgressSnapshot `json:"progress,omitempty"`
	Heartbeat bool                      `json:"heartbeat,omitempty"` // progress value is synthetic
	Result    json.RawMessage           `json:"result,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Marshal serializes the frame payload.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// StatusEvent announces the session's current status.
func StatusEvent(sess *session.Session) Event {
	return Event{Type: TypeStatus, SessionID: sess.ID, Status: sess.Status}
}

// ProgressEvent carries a snapshot. displayOverall replaces the snapshot's
// overall percentage so heartbeat inflation shows up without touching the
// stored value; synthetic marks heartbeat-driven frames.
func ProgressEvent(sess *session.Session, displayOverall float64, synthetic bool) Event {
	snap := sess.Snapshot.Clone()
	snap.OverallProgress = displayOverall
	return Event{
		Type:      TypeProgress,
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  &snap,
		Heartbeat: synthetic,
	}
}

// ResultEvent is the terminal frame for a completed session. The final
// artifact is the last stage's output.
func ResultEvent(sess *session.Session) Event {
	snap := sess.Snapshot.Clone()
	snap.OverallProgress = 100
	return Event{
		Type:      TypeResult,
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  &snap,
		Result:    snap.StepResults[snap.TotalSteps],
	}
}

// ErrorEvent is the terminal frame for a failed or vanished session.
func ErrorEvent(sessionID, message string, snap *session.ProgressSnapshot) Event {
	return Event{
		Type:      TypeError,
		SessionID: sessionID,
		Error:     message,
		Progress:  snap,
	}
}
