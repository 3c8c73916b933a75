package auth

import "time"

// Principal is the authenticated identity snapshot embedded in an access
// credential at issuance time. It is not re-fetched until refresh.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// User is the persisted account record behind a principal. The core only
// needs identity, credentials and status; complaint-side profile data
// lives elsewhere.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Principal returns the identity snapshot for u.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
