package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dme-backend/internal/documents"
	"dme-backend/internal/llm"
	"dme-backend/internal/queue"
	"dme-backend/internal/shared/metrics"
	"dme-backend/internal/shared/storage/object"
	"dme-backend/internal/shared/telemetry"
)

// Service runs the patient-field extraction pipeline against stored
// documents. It implements documents.Enqueuer: uploads hand finished
// documents here, either through the job queue or on an in-process goroutine
// when no queue is configured.
type Service struct {
	Repo  documents.Repo
	Store object.ObjectStore
	LLM   llm.Client
	Jobs  queue.Client

	// Provider retry tuning; zero values fall back to the defaults.
	Attempts  int
	RetryBase time.Duration

	limiter *triggerLimiter
}

func NewService(repo documents.Repo, store object.ObjectStore, client llm.Client, jobs queue.Client) *Service {
	return &Service{
		Repo:    repo,
		Store:   store,
		LLM:     client,
		Jobs:    jobs,
		limiter: newTriggerLimiter(triggerCooldown, nil),
	}
}

// Enqueue hands a stored document to the pipeline. With a queue configured
// the work happens in the worker; without one it runs on a goroutine through
// the same Process path.
func (s *Service) Enqueue(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("documentID is required")
	}
	if s.Jobs != nil {
		msg := queue.Message{
			DocumentID: documentID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		return s.Jobs.Send(ctx, msg)
	}
	go s.processAsync(backgroundWithRequestID(ctx), documentID)
	return nil
}

func (s *Service) processAsync(ctx context.Context, documentID string) {
	if err := s.Process(ctx, documentID); err != nil {
		telemetry.Error("extraction.process", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": documentID,
			"error":       sanitizeError(err),
		})
	}
}

// Process handles one queued document. A nil return means the job is done:
// pipeline failures are persisted on the row, not returned. Errors are
// reserved for infrastructure problems where redelivery can help.
func (s *Service) Process(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("documentID is required")
	}
	doc, err := s.Repo.GetByID(ctx, "", documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			telemetry.Warn("extraction.document_missing", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"document_id": documentID,
			})
			return nil
		}
		return fmt.Errorf("document lookup id=%s: %w", documentID, err)
	}
	switch doc.ExtractionStatus {
	case documents.StatusCompleted, documents.StatusProcessing:
		return nil
	}
	if s.LLM == nil {
		return ErrNotConfigured
	}

	won, err := s.Repo.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("claim document id=%s: %w", doc.ID, err)
	}
	if !won {
		return nil
	}

	// Success or failure, the outcome now lives on the row.
	_ = s.runClaimed(ctx, doc)
	return nil
}

// Trigger runs the pipeline synchronously for the manual endpoint. The bool
// reports a cached hit: a document that already completed with all fields is
// returned as-is.
func (s *Service) Trigger(ctx context.Context, actorID string, admin bool, documentID string) (documents.Document, bool, error) {
	if !s.limiter.Allow(actorID) {
		return documents.Document{}, false, ErrCooldown
	}

	scope := actorID
	if admin {
		scope = ""
	}
	doc, err := s.Repo.GetByID(ctx, scope, documentID)
	if err != nil {
		return documents.Document{}, false, err
	}
	if doc.ExtractionStatus == documents.StatusCompleted && hasAllFields(doc) {
		return doc, true, nil
	}
	if doc.ExtractionStatus == documents.StatusProcessing {
		return documents.Document{}, false, ErrInProgress
	}
	if s.LLM == nil {
		return documents.Document{}, false, ErrNotConfigured
	}

	won, err := s.Repo.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		return documents.Document{}, false, err
	}
	if !won {
		// Lost a race. A worker finishing between the read and the claim
		// shows up here as a fresh completed row.
		fresh, ferr := s.Repo.GetByID(ctx, scope, doc.ID)
		if ferr == nil && fresh.ExtractionStatus == documents.StatusCompleted {
			return fresh, true, nil
		}
		return documents.Document{}, false, ErrInProgress
	}

	if err := s.runClaimed(ctx, doc); err != nil {
		return documents.Document{}, false, err
	}
	final, err := s.Repo.GetByID(ctx, scope, doc.ID)
	if err != nil {
		return documents.Document{}, false, err
	}
	return final, false, nil
}

// RetryAfterSeconds reports the trigger cooldown for 429 responses.
func (s *Service) RetryAfterSeconds() int {
	return s.limiter.RetryAfterSeconds()
}

// runClaimed owns a document that was just moved to processing and must leave
// it in a terminal state.
func (s *Service) runClaimed(ctx context.Context, doc documents.Document) error {
	startedAt := time.Now().UTC()
	metrics.IncExtractionStarted()
	telemetry.Info("extraction.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"status":            documents.StatusProcessing,
		"status_transition": doc.ExtractionStatus + "->processing",
	})

	result, err := s.run(ctx, doc)
	if err != nil {
		s.fail(ctx, doc, err, startedAt)
		return err
	}
	if err := s.complete(ctx, doc, result, startedAt); err != nil {
		failure := &PipelineError{Code: ErrorCodeStorage, Err: err}
		s.fail(ctx, doc, failure, startedAt)
		return failure
	}
	return nil
}

func (s *Service) run(ctx context.Context, doc documents.Document) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PipelineError{Code: ErrorCodeInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return Result{}, &PipelineError{Code: ErrorCodeStorage, Err: fmt.Errorf("open stored object key=%s: %w", doc.StorageKey, err)}
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return Result{}, &PipelineError{Code: ErrorCodeStorage, Err: fmt.Errorf("read stored object key=%s: %w", doc.StorageKey, err)}
	}
	if len(data) == 0 {
		return Result{}, &PipelineError{Code: ErrorCodeNoContent, Err: errors.New("stored object is empty")}
	}

	client := newRetryingLLM(s.LLM, s.Attempts, s.RetryBase, doc.ID, requestIDFromContext(ctx))
	if doc.ContentType == "application/pdf" {
		return extractFromPDF(ctx, client, data)
	}
	return extractFromImage(ctx, client, doc.ContentType, data)
}

func (s *Service) complete(ctx context.Context, doc documents.Document, result Result, startedAt time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.Repo.MarkCompleted(ctx, doc.ID, result.PatientFirstName, result.PatientLastName, result.PatientDOB, raw); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	completedAt := time.Now().UTC()
	metrics.IncExtractionCompleted()
	metrics.ObserveExtractionDurationMs(durationMs(startedAt, completedAt))
	telemetry.Info("extraction.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"status":            documents.StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(startedAt, completedAt),
		"fields_found":      completeness(result),
		"confidence":        result.Confidence,
	})
	return nil
}

func (s *Service) fail(ctx context.Context, doc documents.Document, cause error, startedAt time.Time) {
	code := failureCode(cause)
	msg := code + ": " + sanitizeError(cause)
	// Terminal writes use a fresh context so a canceled request cannot strand
	// the row in processing.
	if err := s.Repo.MarkFailed(context.Background(), doc.ID, msg); err != nil {
		telemetry.Error("extraction.mark_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       err.Error(),
			"cause":       sanitizeError(cause),
		})
	}
	completedAt := time.Now().UTC()
	metrics.IncExtractionFailed()
	metrics.ObserveExtractionDurationMs(durationMs(startedAt, completedAt))
	telemetry.Info("extraction.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"status":            documents.StatusFailed,
		"status_transition": "processing->failed",
		"duration_ms":       durationMs(startedAt, completedAt),
		"error_code":        code,
	})
}

func failureCode(err error) string {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Code
	}
	return ErrorCodeInternal
}

func hasAllFields(doc documents.Document) bool {
	return doc.PatientFirstName != "" && doc.PatientLastName != "" && doc.PatientDOB != ""
}

func durationMs(startedAt, completedAt time.Time) float64 {
	if startedAt.IsZero() || completedAt.IsZero() {
		return 0
	}
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
