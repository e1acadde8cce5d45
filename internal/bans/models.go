package bans

import "time"

// ShareBan is a directed block pair: the blocker refuses shared todos (and
// therefore calls) from the blocked user. The reverse direction is a
// separate row.
type ShareBan struct {
	ID            string    `json:"id" db:"id"`
	BlockerUserID string    `json:"blockerUserId" db:"blocker_user_id"`
	BlockedUserID string    `json:"blockedUserId" db:"blocked_user_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
