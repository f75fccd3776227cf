package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// pageKeyedLLM answers each call based on the page text so concurrent
// batches stay deterministic.
type pageKeyedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func (s *pageKeyedLLM) ExtractFromText(ctx context.Context, text string) (string, error) {
	_ = ctx
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	if err, ok := s.failures[text]; ok {
		return "", err
	}
	return s.responses[text], nil
}

func (s *pageKeyedLLM) ExtractFromImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	_ = ctx
	_ = mimeType
	return s.ExtractFromText(ctx, string(data))
}

func (s *pageKeyedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func resultJSON(first, last, dob, confidence string) string {
	return fmt.Sprintf(`{"patient_first_name":%q,"patient_last_name":%q,"patient_dob":%q,"confidence":%q,"notes":""}`,
		first, last, dob, confidence)
}

func TestExtractFromPagesPicksMostComplete(t *testing.T) {
	client := &pageKeyedLLM{responses: map[string]string{
		"page one":   resultJSON("Jane", "Not Found", "Not Found", "low"),
		"page two":   resultJSON("Jane", "Doe", "Not Found", "medium"),
		"page three": resultJSON("Jane", "Doe", "01/01/1980", "high"),
	}}

	result, err := extractFromPages(context.Background(), client, []string{"page one", "page two", "page three"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.callCount() != 3 {
		t.Fatalf("expected all 3 pages called, got %d", client.callCount())
	}
	if result.PatientFirstName != "Jane" || result.PatientLastName != "Doe" || result.PatientDOB != "1980-01-01" {
		t.Fatalf("expected the complete page to win, got %+v", result)
	}
	if !strings.Contains(result.Notes, "Processed 3 of 3 pages") {
		t.Fatalf("expected page note, got %q", result.Notes)
	}
}

func TestExtractFromPagesStopsEarly(t *testing.T) {
	client := &pageKeyedLLM{responses: map[string]string{
		"page one":   resultJSON("Jane", "Doe", "1980-01-01", "high"),
		"page two":   resultJSON("Not Found", "Not Found", "Not Found", "low"),
		"page three": resultJSON("John", "Roe", "1990-05-05", "high"),
		"page four":  resultJSON("John", "Roe", "1990-05-05", "high"),
	}}

	result, err := extractFromPages(context.Background(), client, []string{"page one", "page two", "page three", "page four"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.callCount() != 2 {
		t.Fatalf("expected the first batch to satisfy the early stop, got %d calls", client.callCount())
	}
	if result.PatientFirstName != "Jane" {
		t.Fatalf("expected the first page result, got %+v", result)
	}
}

func TestExtractFromPagesSurvivesPartialFailure(t *testing.T) {
	client := &pageKeyedLLM{
		responses: map[string]string{
			"page two": resultJSON("Jane", "Doe", "Not Found", "medium"),
		},
		failures: map[string]error{
			"page one": errors.New("openai status 500: upstream blew up"),
		},
	}

	result, err := extractFromPages(context.Background(), client, []string{"page one", "page two"})
	if err != nil {
		t.Fatalf("expected one good page to carry the run: %v", err)
	}
	if result.PatientFirstName != "Jane" || result.PatientLastName != "Doe" {
		t.Fatalf("expected the surviving page result, got %+v", result)
	}
}

func TestExtractFromPagesFailsWhenAllCallsFail(t *testing.T) {
	client := &pageKeyedLLM{failures: map[string]error{
		"page one": errors.New("openai status 503: unavailable"),
		"page two": errors.New("openai status 503: unavailable"),
	}}

	_, err := extractFromPages(context.Background(), client, []string{"page one", "page two"})
	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected a pipeline error, got %v", err)
	}
	if pipeErr.Code != ErrorCodeProvider {
		t.Fatalf("expected %s, got %s", ErrorCodeProvider, pipeErr.Code)
	}
}

func TestExtractFromImageParsesResponse(t *testing.T) {
	client := &pageKeyedLLM{responses: map[string]string{
		"image-bytes": resultJSON("Jane", "Doe", "January 1, 1980", "high"),
	}}

	result, err := extractFromImage(context.Background(), client, "image/png", []byte("image-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PatientDOB != "1980-01-01" {
		t.Fatalf("expected DOB normalized from long form, got %q", result.PatientDOB)
	}
	if result.Notes != "" {
		t.Fatalf("single call should not gain a page note, got %q", result.Notes)
	}
}

func TestExtractFromImageClassifiesRateLimit(t *testing.T) {
	client := &pageKeyedLLM{failures: map[string]error{
		"image-bytes": errors.New("openai status 429: slow down"),
	}}

	_, err := extractFromImage(context.Background(), client, "image/jpeg", []byte("image-bytes"))
	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected a pipeline error, got %v", err)
	}
	if pipeErr.Code != ErrorCodeRateLimited {
		t.Fatalf("expected %s, got %s", ErrorCodeRateLimited, pipeErr.Code)
	}
}

func TestClassifyProviderError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, ErrorCodeTimeout},
		{errors.New("openai request timeout: context deadline exceeded"), ErrorCodeTimeout},
		{errors.New("openai status 429: Too Many Requests"), ErrorCodeRateLimited},
		{errors.New("rate limit exceeded for model"), ErrorCodeRateLimited},
		{errors.New("openai response empty content"), ErrorCodeInvalid},
		{errors.New("openai response missing choices"), ErrorCodeInvalid},
		{errors.New("openai status 500: internal"), ErrorCodeProvider},
		{errors.New("dial tcp: connection refused"), ErrorCodeProvider},
	}
	for _, tc := range cases {
		if got := classifyProviderError(tc.err); got != tc.want {
			t.Fatalf("classifyProviderError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
