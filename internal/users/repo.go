package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("username or email already registered")
)

type Repo interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}
