package extraction

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"time"

	"dme-backend/internal/llm"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 300 * time.Millisecond
)

// retryingLLM retries transient provider failures with exponential backoff
// before the caller sees the error.
type retryingLLM struct {
	base       llm.Client
	attempts   int
	baseDelay  time.Duration
	requestID  string
	documentID string
}

func newRetryingLLM(base llm.Client, attempts int, baseDelay time.Duration, documentID, requestID string) llm.Client {
	if base == nil {
		return nil
	}
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	return retryingLLM{
		base:       base,
		attempts:   attempts,
		baseDelay:  baseDelay,
		requestID:  requestID,
		documentID: documentID,
	}
}

func (r retryingLLM) ExtractFromText(ctx context.Context, text string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.base.ExtractFromText(ctx, text)
	})
}

func (r retryingLLM) ExtractFromImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.base.ExtractFromImage(ctx, mimeType, data)
	})
}

func (r retryingLLM) do(ctx context.Context, call func() (string, error)) (string, error) {
	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		if attempt >= r.attempts || !shouldRetryLLM(err) {
			return "", err
		}
		log.Printf("llm retry attempt=%d request_id=%s document_id=%s error=%s", attempt, r.requestID, r.documentID, sanitizeError(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}
}

func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "status 429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
