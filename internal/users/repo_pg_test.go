package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGRepoCreateInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	user := User{
		ID:           "user-1",
		Username:     "jane_doe",
		Email:        "jane@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         RoleUser,
		IsActive:     true,
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_username_key"})

	err = repo.Create(context.Background(), User{ID: "user-1", Username: "jane_doe", Email: "jane@example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPGRepoGetByUsernameScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}).
		AddRow("user-1", "jane_doe", "jane@example.com", "$2a$10$hash", RoleAdmin, true, now, now)

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("jane_doe").
		WillReturnRows(rows)

	user, err := repo.GetByUsername(context.Background(), "jane_doe")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if user.PasswordHash != "$2a$10$hash" {
		t.Fatalf("expected password hash to be scanned, got %q", user.PasswordHash)
	}
	if user.Role != RoleAdmin || !user.IsActive {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestPGRepoGetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectQuery("SELECT id, username, email").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}))

	_, err = repo.GetByEmail(context.Background(), "missing@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
