package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"dme-backend/internal/shared/storage/object"
	"dme-backend/internal/shared/telemetry"
)

const maxUploadSize = 10 << 20 // 10MiB

const sniffLen = 512

// allowedExtensions maps the accepted content types to the extension used for
// the generated storage name.
var allowedExtensions = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/tiff":      ".tif",
	"image/bmp":       ".bmp",
}

// Enqueuer hands a stored document to the extraction pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID string) error
}

// Service contains business logic for documents.
type Service struct {
	Repo    Repo
	Store   object.ObjectStore
	Extract Enqueuer
}

func NewService(repo Repo, store object.ObjectStore, extract Enqueuer) *Service {
	return &Service{Repo: repo, Store: store, Extract: extract}
}

// Upload validates the file, stores the bytes and records the document as
// pending. All validation happens before the first object store write.
func (s *Service) Upload(ctx context.Context, userID, originalName, declaredType string, size int64, r io.Reader) (Document, error) {
	originalName = strings.TrimSpace(originalName)
	if originalName == "" {
		return Document{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if size > maxUploadSize {
		return Document{}, fmt.Errorf("%w: file exceeds the 10 MiB limit", ErrInvalidInput)
	}

	declared := normalizeContentType(declaredType)
	ext, ok := allowedExtensions[declared]
	if !ok {
		return Document{}, fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, declaredType)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Document{}, fmt.Errorf("%w: read upload: %v", ErrStorage, err)
	}
	if n == 0 {
		return Document{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	sniffed := normalizeContentType(http.DetectContentType(head[:n]))
	if sniffed != declared {
		return Document{}, fmt.Errorf("%w: file content (%s) does not match the declared type %q", ErrInvalidInput, sniffed, declaredType)
	}

	fileName := uuid.NewString() + ext
	storageKey, stored, _, err := s.Store.Save(ctx, userID, fileName, io.MultiReader(bytes.NewReader(head[:n]), r))
	if err != nil {
		return Document{}, fmt.Errorf("%w: save object: %v", ErrStorage, err)
	}

	doc := Document{
		ID:               uuid.NewString(),
		UserID:           userID,
		FileName:         fileName,
		OriginalName:     path.Base(originalName),
		SizeBytes:        stored,
		ContentType:      declared,
		StorageKey:       storageKey,
		ExtractionStatus: StatusPending,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.Repo.Insert(ctx, doc); err != nil {
		return Document{}, err
	}

	if s.Extract != nil {
		if err := s.Extract.Enqueue(ctx, doc.ID); err != nil {
			// The document stays pending; the manual trigger can recover it.
			telemetry.Warn("document.enqueue_failed", map[string]any{
				"document_id": doc.ID,
				"error":       err.Error(),
			})
		}
	}
	return doc, nil
}

func (s *Service) Get(ctx context.Context, actorID string, admin bool, documentID string) (Document, error) {
	scope := actorID
	if admin {
		scope = ""
	}
	return s.Repo.GetByID(ctx, scope, documentID)
}

// List scopes non-admin callers to their own documents.
func (s *Service) List(ctx context.Context, actorID string, admin bool, filter ListFilter) ([]Document, int, error) {
	if !admin {
		filter.UserID = actorID
	}
	return s.Repo.List(ctx, filter)
}

// Download returns a presigned URL when the store supports one, otherwise a
// reader over the stored bytes. Exactly one of url and rc is set.
func (s *Service) Download(ctx context.Context, actorID string, admin bool, documentID string) (Document, string, io.ReadCloser, error) {
	doc, err := s.Get(ctx, actorID, admin, documentID)
	if err != nil {
		return Document{}, "", nil, err
	}

	if presigner, ok := s.Store.(object.Presigner); ok {
		url, err := presigner.PresignGet(ctx, doc.StorageKey, time.Hour)
		if err != nil {
			return Document{}, "", nil, fmt.Errorf("%w: presign: %v", ErrStorage, err)
		}
		return doc, url, nil, nil
	}

	rc, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return Document{}, "", nil, fmt.Errorf("%w: open object: %v", ErrStorage, err)
	}
	return doc, "", rc, nil
}

// Delete removes the stored object first, then the row.
func (s *Service) Delete(ctx context.Context, actorID string, admin bool, documentID string) (Document, error) {
	doc, err := s.Get(ctx, actorID, admin, documentID)
	if err != nil {
		return Document{}, err
	}
	if err := s.Store.Delete(ctx, doc.StorageKey); err != nil {
		return Document{}, fmt.Errorf("%w: delete object: %v", ErrStorage, err)
	}
	scope := actorID
	if admin {
		scope = ""
	}
	if err := s.Repo.Delete(ctx, scope, doc.ID); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func normalizeContentType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	if value == "image/jpg" {
		value = "image/jpeg"
	}
	return value
}
