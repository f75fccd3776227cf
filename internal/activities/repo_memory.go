package activities

import (
	"context"
	"sync"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	entries []Activity
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Insert(ctx context.Context, activity Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, activity)
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	limit, offset = clampPage(limit, offset)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Activity
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			matched = append(matched, r.entries[i])
		}
	}
	return pageOf(matched, limit, offset), len(matched), nil
}

func (r *MemoryRepo) ListAll(ctx context.Context, action string, limit, offset int) ([]Activity, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	limit, offset = clampPage(limit, offset)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Activity
	for i := len(r.entries) - 1; i >= 0; i-- {
		if action == "" || r.entries[i].Action == action {
			matched = append(matched, r.entries[i])
		}
	}
	return pageOf(matched, limit, offset), len(matched), nil
}

func pageOf(entries []Activity, limit, offset int) []Activity {
	if offset >= len(entries) {
		return nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]Activity, end-offset)
	copy(out, entries[offset:end])
	return out
}
