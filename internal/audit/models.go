package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	// System-initiated events (the stale-session reaper) leave it empty.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// Target identifiers (optional, depending on the event type).
	TodoID        string `json:"todo_id,omitempty" db:"todo_id"`
	CallSessionID string `json:"call_session_id,omitempty" db:"call_session_id"`
	SubjectUserID string `json:"subject_user_id,omitempty" db:"subject_user_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallStarted  EventType = "call_started"
	EventTypeCallRevived  EventType = "call_revived"
	EventTypeCallResolved EventType = "call_resolved"
	EventTypeCallReaped   EventType = "call_reaped"
	EventTypeBanCreated   EventType = "share_ban_created"
	EventTypeBanRemoved   EventType = "share_ban_removed"
)
