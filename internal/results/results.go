// Package results defines the durable store that receives a session's final
// result. It is written exactly once per session, only on successful
// completion; in-flight progress never touches it.
package results

import (
	"context"
	"encoding/json"
)

// Store persists final pipeline results.
type Store interface {
	// Persist writes the final result for a completed session.
	Persist(ctx context.Context, sessionID, userID string, result json.RawMessage) error
}
