package users

import "time"

// User is an account record. Credentials (passkeys) are enrolled and
// verified by the authentication collaborator in front of this API; this
// service only tracks the account itself.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
