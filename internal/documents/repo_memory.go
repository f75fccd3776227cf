package documents

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{docs: make(map[string]Document)}
}

func (r *MemoryRepo) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok || (userID != "" && doc.UserID != userID) {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Document
	for _, doc := range r.docs {
		if filter.UserID != "" && doc.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && doc.ExtractionStatus != filter.Status {
			continue
		}
		matched = append(matched, doc)
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
	out := make([]Document, end-offset)
	copy(out, matched[offset:end])
	return out, total, nil
}

func (r *MemoryRepo) ClaimForProcessing(ctx context.Context, documentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return false, nil
	}
	if doc.ExtractionStatus != StatusPending && doc.ExtractionStatus != StatusFailed {
		return false, nil
	}
	doc.ExtractionStatus = StatusProcessing
	doc.ExtractionError = ""
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return true, nil
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, documentID, firstName, lastName, dob string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.ExtractionStatus != StatusProcessing {
		return ErrNotProcessing
	}
	doc.PatientFirstName = firstName
	doc.PatientLastName = lastName
	doc.PatientDOB = dob
	if len(raw) > 0 {
		var extracted map[string]any
		if err := json.Unmarshal(raw, &extracted); err == nil {
			doc.Extracted = extracted
		}
	}
	doc.ExtractionStatus = StatusCompleted
	doc.ExtractionError = ""
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, documentID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.ExtractionStatus != StatusProcessing {
		return ErrNotProcessing
	}
	doc.ExtractionStatus = StatusFailed
	doc.ExtractionError = message
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, userID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || (userID != "" && doc.UserID != userID) {
		return ErrNotFound
	}
	delete(r.docs, documentID)
	return nil
}
