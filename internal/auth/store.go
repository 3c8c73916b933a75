package auth

import "context"

// Store is the principal store collaborator. Refresh re-resolves role and
// name through it instead of trusting the claims of the presented token.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}
