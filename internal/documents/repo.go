package documents

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// ErrInvalidInput marks upload validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrStorage marks object store failures.
var ErrStorage = errors.New("storage failure")

// ErrNotProcessing is returned when a terminal write loses its claim: the row
// is no longer in the processing state, so nothing was written.
var ErrNotProcessing = errors.New("document is not processing")

// ListFilter narrows List results. Empty fields are ignored.
type ListFilter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

// Repo defines persistence operations for documents. Read and delete
// operations scope to a user; an empty userID skips the scope (admin and
// worker paths).
type Repo interface {
	Insert(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userID, documentID string) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	// ClaimForProcessing moves a pending or failed document to processing and
	// reports whether this caller won the claim.
	ClaimForProcessing(ctx context.Context, documentID string) (bool, error)
	// MarkCompleted atomically writes the patient fields, the raw result and
	// the completed status. Only a processing document can complete.
	MarkCompleted(ctx context.Context, documentID, firstName, lastName, dob string, raw []byte) error
	// MarkFailed atomically writes the error message and the failed status.
	// Only a processing document can fail.
	MarkFailed(ctx context.Context, documentID, message string) error
	Delete(ctx context.Context, userID, documentID string) error
}
