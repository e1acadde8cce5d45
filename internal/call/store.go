package call

import (
	"context"
	"time"

	"todocall-platform/internal/todos"
)

// Store is the transactional persistence contract for the coordinator.
//
// All cross-client coordination goes through it: the coordinator itself is
// stateless and is invoked concurrently by independent client processes, so
// every method here must be atomic on its own.
type Store interface {
	// GetTodo reads the todo a call is bound to.
	GetTodo(ctx context.Context, todoID string) (todos.Todo, bool, error)

	// GetSessionByTodo reads the single session for a todo, if any.
	GetSessionByTodo(ctx context.Context, todoID string) (Session, bool, error)

	// StartSession creates, revives, or reuses the session for the todo:
	//  - no session: create one with the given id, status active, startedAt now
	//  - ended session: revive in place (same row id, new startedAt, endedAt nil)
	//  - active session: return it unchanged (join)
	// The outcome reports which of the three happened. Concurrent calls for
	// one todo must never produce two rows; the todo_id uniqueness constraint
	// is the arbiter and the loser of a race adopts the winner's row.
	StartSession(ctx context.Context, sessionID string, todo todos.Todo, now time.Time) (Session, StartOutcome, error)

	// AppendSignal inserts one relay message. Append-only, no coordination.
	AppendSignal(ctx context.Context, sig Signal) error

	// TakeUndeliveredSignals atomically selects all undelivered signals
	// addressed to toUserID for the session, marks them delivered at now,
	// and returns them ordered by creation time. A signal is returned by
	// exactly one call, ever, regardless of concurrent polling.
	TakeUndeliveredSignals(ctx context.Context, sessionID, toUserID string, now time.Time) ([]Signal, error)

	// EndCall resolves the call in one transaction: ends the session (if one
	// exists) and either completes the todo or reschedules it. A validation
	// failure rolls the whole transaction back, leaving session and todo
	// untouched.
	EndCall(ctx context.Context, todoID string, res EndResolution, now time.Time) (todos.Todo, error)

	// ListActiveSessions returns every session currently active. Used by the
	// stale-session reaper.
	ListActiveSessions(ctx context.Context) ([]Session, error)

	// MarkSessionEnded force-ends a session without touching its todo.
	// Returns false when the session was not active (already ended or gone).
	MarkSessionEnded(ctx context.Context, sessionID string, now time.Time) (bool, error)
}

// StartOutcome reports what StartSession did to the session row.
type StartOutcome string

const (
	// OutcomeCreated means a brand new session row was inserted.
	OutcomeCreated StartOutcome = "created"
	// OutcomeRevived means an ended session was reopened in place.
	OutcomeRevived StartOutcome = "revived"
	// OutcomeJoined means an already active session was returned unchanged.
	OutcomeJoined StartOutcome = "joined"
)

// EndResolution is the todo mutation applied atomically with ending the
// session: mark done, or reschedule to a new due time.
type EndResolution struct {
	MarkDone        bool
	RescheduleDueAt time.Time
}

// validateReschedule enforces the reschedule rules shared by every Store
// implementation: the new due time must be in the future and strictly later
// than the todo's current due time.
func validateReschedule(now time.Time, currentDueAt *time.Time, next time.Time) error {
	if next.IsZero() {
		return ErrRescheduleRequired
	}
	if !next.After(now) {
		return ErrRescheduleNotFuture
	}
	if currentDueAt != nil && !next.After(*currentDueAt) {
		return ErrRescheduleNotLater
	}
	return nil
}
