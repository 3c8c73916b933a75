package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidRole marks a role outside the closed catalog. Distinct from
	// a plain permission miss so callers never confuse "unknown role" with
	// "known role without the permission".
	ErrInvalidRole = errors.New("auth: invalid role")
)
