package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyLLM struct {
	mu       sync.Mutex
	failWith error
	failures int
	calls    int
}

func (f *flakyLLM) ExtractFromText(ctx context.Context, text string) (string, error) {
	_ = ctx
	_ = text
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", f.failWith
	}
	return `{"patient_first_name":"Jane"}`, nil
}

func (f *flakyLLM) ExtractFromImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	_ = mimeType
	_ = data
	return f.ExtractFromText(ctx, "")
}

func TestRetryingLLMRecoversFromTransientFailure(t *testing.T) {
	base := &flakyLLM{failWith: errors.New("openai status 503: unavailable"), failures: 2}
	client := newRetryingLLM(base, 3, time.Millisecond, "doc-1", "req-1")

	resp, err := client.ExtractFromText(context.Background(), "page")
	if err != nil {
		t.Fatalf("expected the third attempt to succeed: %v", err)
	}
	if resp == "" {
		t.Fatalf("expected a response after retries")
	}
	if base.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", base.calls)
	}
}

func TestRetryingLLMStopsAfterMaxAttempts(t *testing.T) {
	base := &flakyLLM{failWith: errors.New("openai status 429: Too Many Requests"), failures: 10}
	client := newRetryingLLM(base, 3, time.Millisecond, "doc-1", "req-1")

	_, err := client.ExtractFromText(context.Background(), "page")
	if err == nil {
		t.Fatalf("expected the retries to run out")
	}
	if base.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", base.calls)
	}
}

func TestRetryingLLMDoesNotRetryPermanentErrors(t *testing.T) {
	base := &flakyLLM{failWith: errors.New("openai status 400: invalid request"), failures: 10}
	client := newRetryingLLM(base, 3, time.Millisecond, "doc-1", "req-1")

	_, err := client.ExtractFromText(context.Background(), "page")
	if err == nil {
		t.Fatalf("expected the error to surface")
	}
	if base.calls != 1 {
		t.Fatalf("expected a single attempt for a 400, got %d", base.calls)
	}
}

func TestShouldRetryLLM(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{errors.New("openai status 502: bad gateway"), true},
		{errors.New("openai status 429: Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("openai request timeout: Client.Timeout exceeded"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("openai status 401: invalid api key"), false},
		{errors.New("openai response missing choices"), false},
	}
	for _, tc := range cases {
		if got := shouldRetryLLM(tc.err); got != tc.want {
			t.Fatalf("shouldRetryLLM(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}
