package session

import "context"

// Store holds live sessions.
//
// Create enforces the duplicate-job guard: at most one session per user may be
// in a non-terminal status, and the check-and-insert is atomic so concurrent
// creates for the same user cannot both succeed.
//
// Get and ListByUser return deep copies; callers never share memory with the
// stored record. Update applies fn to the live record under the store's write
// lock and is the only mutation path. Implementations must preserve two
// invariants across Update calls: a terminal status is never overwritten, and
// OverallProgress never decreases.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	List(ctx context.Context) ([]*Session, error)
}
