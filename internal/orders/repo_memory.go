package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]Order)}
}

func (r *MemoryRepo) Create(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.OrderNumber == order.OrderNumber {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = order
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.Patient != "" && !matchesPatient(order, filter.Patient) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]Order, end-offset)
	copy(out, matched[offset:end])
	return out, total, nil
}

func (r *MemoryRepo) Update(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	order.CreatedAt = existing.CreatedAt
	order.UpdatedAt = time.Now().UTC()
	r.orders[order.ID] = order
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return ErrNotFound
	}
	delete(r.orders, orderID)
	return nil
}

func matchesPatient(order Order, needle string) bool {
	needle = strings.ToLower(needle)
	return strings.Contains(strings.ToLower(order.PatientFirstName), needle) ||
		strings.Contains(strings.ToLower(order.PatientLastName), needle)
}
