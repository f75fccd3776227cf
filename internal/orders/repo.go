package orders

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("order not found")
	ErrConflict = errors.New("order number already exists")
)

// ListFilter narrows List results. Empty fields are ignored.
type ListFilter struct {
	UserID  string
	Status  string
	Patient string
	Limit   int
	Offset  int
}

type Repo interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	Update(ctx context.Context, order Order) error
	Delete(ctx context.Context, orderID string) error
}
