package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"civium.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return New(db), mock, func() { _ = db.Close() }
}

func TestCreateUser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery(`insert into users`).
		WithArgs(sqlmock.AnyArg(), "dana@example.org", "Dana", "citizen", "hash", "active").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &auth.User{
		Email:        "Dana@Example.org",
		Name:         "Dana",
		Role:         auth.RoleCitizen,
		PasswordHash: "hash",
		Status:       auth.UserStatusActive,
	}
	if err := store.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated user id")
	}
	if !u.CreatedAt.Equal(now) {
		t.Fatalf("expected returned created_at, got %v", u.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	u := &auth.User{Email: "dana@example.org", Role: auth.RoleCitizen, Status: auth.UserStatusActive}
	if err := store.Create(context.Background(), u); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`select id, email, name, role, password_hash, status, created_at, updated_at`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByEmailNormalizesAndScans(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "email", "name", "role", "password_hash", "status", "created_at", "updated_at",
	}).AddRow("u-1", "dana@example.org", "Dana", "officer", "hash", "active", now, now)

	mock.ExpectQuery(`from users where email`).
		WithArgs("dana@example.org").
		WillReturnRows(rows)

	u, err := store.FindByEmail(context.Background(), "  Dana@Example.org ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.Role != auth.RoleOfficer || u.ID != "u-1" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetPasswordMissingUser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`update users set password_hash`).
		WithArgs("missing", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SetPassword(context.Background(), "missing", "newhash"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
