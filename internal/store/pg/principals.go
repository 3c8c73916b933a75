package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"civium.org/internal/auth"
	"civium.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// Create inserts a user record. A duplicate email maps to auth.ErrConflict.
func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if u == nil {
		return errors.New("pg: user is required")
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, role, password_hash, status)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, strings.ToLower(u.Email), u.Name, string(u.Role), u.PasswordHash, u.Status)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// FindByID loads a user by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findUser(ctx, `
		select id, email, name, role, password_hash, status, created_at, updated_at
		from users where id = $1
	`, id)
}

// FindByEmail loads a user by email (stored lower-cased).
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, `
		select id, email, name, role, password_hash, status, created_at, updated_at
		from users where email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
}

// SetPassword replaces the stored hash for userID.
func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, query, arg string) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
