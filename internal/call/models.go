package call

import (
	"encoding/json"
	"time"
)

// Session is the server-tracked record of the call lifecycle for one todo.
// There is at most one session per todo, ever: ended sessions are revived in
// place on a later start rather than recreated, so polling clients keep a
// stable session id across reschedules.
type Session struct {
	ID              string     `json:"id" db:"id"`
	TodoID          string     `json:"todoId" db:"todo_id"`
	InitiatorUserID string     `json:"initiatorUserId" db:"initiator_user_id"`
	RecipientUserID string     `json:"recipientUserId" db:"recipient_user_id"`
	Status          Status     `json:"status" db:"status"`
	StartedAt       time.Time  `json:"startedAt" db:"started_at"`
	EndedAt         *time.Time `json:"endedAt" db:"ended_at"`
}

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Signal is one point-to-point store-and-forward message between the two
// call participants (offer / answer / ICE candidate / control). The payload
// is opaque JSON; the relay round-trips it untouched.
type Signal struct {
	ID            string          `json:"id" db:"id"`
	CallSessionID string          `json:"-" db:"call_session_id"`
	FromUserID    string          `json:"fromUserId" db:"from_user_id"`
	ToUserID      string          `json:"toUserId" db:"to_user_id"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`

	// DeliveredAt is set transactionally with the poll that returns the
	// signal; non-nil means it will never be returned again.
	DeliveredAt *time.Time `json:"-" db:"delivered_at"`
}

// Role identifies which side of a call a participant is on.
// The initiator (todo owner) is A; the shared user is B. Only B may resolve
// the call.
type Role string

const (
	RoleInitiator Role = "A"
	RoleRecipient Role = "B"
)
