package extraction

import "errors"

var (
	ErrNotConfigured = errors.New("extraction provider not configured")
	ErrInProgress    = errors.New("extraction already in progress")
	ErrCooldown      = errors.New("extraction recently triggered")
)

const (
	ErrorCodeTimeout     = "EXTRACTION_TIMEOUT"
	ErrorCodeRateLimited = "PROVIDER_RATE_LIMITED"
	ErrorCodeProvider    = "PROVIDER_ERROR"
	ErrorCodeInvalid     = "INVALID_OUTPUT"
	ErrorCodeNoContent   = "NO_CONTENT"
	ErrorCodeStorage     = "STORAGE_ERROR"
	ErrorCodeInternal    = "INTERNAL_ERROR"
)

// PipelineError is a terminal pipeline failure. Code is one of the ErrorCode
// constants and is persisted with the failed document.
type PipelineError struct {
	Code string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }
