package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

type PGRepo struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	return r.getBy(ctx, "id", userID)
}

func (r *PGRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *PGRepo) getBy(ctx context.Context, column, value string) (User, error) {
	query := `
SELECT id, username, email, password_hash, role, is_active, created_at, updated_at
FROM users
WHERE ` + column + ` = $1
LIMIT 1`
	var user User
	err := r.DB.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}
