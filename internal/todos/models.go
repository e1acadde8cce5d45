package todos

import "time"

// Todo is a task owned by one user and optionally shared with exactly one
// other user. Sharing plus a due time is what makes a todo callable: the two
// parties may hold a video call once the meeting window opens.
type Todo struct {
	ID          string `json:"id" db:"id"`
	OwnerID     string `json:"ownerId" db:"owner_id"`
	Text        string `json:"text" db:"text"`
	Description string `json:"description" db:"description"`

	Completed bool       `json:"completed" db:"completed"`
	DueAt     *time.Time `json:"dueAt" db:"due_at"`

	// SharedWithUserID is nil when the todo is private. At most one share
	// target; no group sharing.
	SharedWithUserID *string `json:"sharedWithUserId" db:"shared_with_user_id"`

	// StartMeetingBeforeMin opens the call window this many minutes before
	// DueAt. 0..1440.
	StartMeetingBeforeMin int `json:"startMeetingBeforeMin" db:"start_meeting_before_min"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CallStartAt is the earliest instant a call for this todo may start:
// DueAt minus StartMeetingBeforeMin. ok is false when no due time is set.
func (t Todo) CallStartAt() (time.Time, bool) {
	if t.DueAt == nil {
		return time.Time{}, false
	}
	lead := t.StartMeetingBeforeMin
	if lead < 0 {
		lead = 0
	}
	return t.DueAt.Add(-time.Duration(lead) * time.Minute), true
}

// IsParticipant reports whether userID is the owner or the shared user.
func (t Todo) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if t.OwnerID == userID {
		return true
	}
	return t.SharedWithUserID != nil && *t.SharedWithUserID == userID
}
