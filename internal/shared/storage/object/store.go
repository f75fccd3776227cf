package object

import (
	"context"
	"io"
	"time"
)

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, userId string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// Presigner is implemented by stores that can mint short-lived download URLs.
// Callers fall back to streaming through Open when the store does not
// implement it.
type Presigner interface {
	PresignGet(ctx context.Context, storageKey string, expires time.Duration) (string, error)
}
