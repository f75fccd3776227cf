package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"dme-backend/internal/llm"
)

const (
	pageBatchSize   = 2
	earlyStopFields = 2
)

// extractFromImage runs a single vision call for an image document.
func extractFromImage(ctx context.Context, client llm.Client, mimeType string, data []byte) (Result, error) {
	raw, err := client.ExtractFromImage(ctx, mimeType, data)
	if err != nil {
		return Result{}, pipelineFailure(err)
	}
	return parseResult(raw), nil
}

// extractFromPDF pulls per-page text and reduces the page results to the most
// complete one.
func extractFromPDF(ctx context.Context, client llm.Client, data []byte) (Result, error) {
	pages, err := pdfPageTexts(data)
	if err != nil {
		return Result{}, &PipelineError{Code: ErrorCodeNoContent, Err: err}
	}
	if len(pages) == 0 {
		return Result{}, &PipelineError{
			Code: ErrorCodeNoContent,
			Err:  errors.New("no extractable text; scanned PDFs must be uploaded as page images"),
		}
	}
	return extractFromPages(ctx, client, pages)
}

type pageOutcome struct {
	result Result
	err    error
}

// extractFromPages runs pages through the model in small concurrent batches,
// keeping the best result so far and stopping early once it is good enough.
// A single readable page is enough for success; the call fails only when
// every page call fails.
func extractFromPages(ctx context.Context, client llm.Client, pages []string) (Result, error) {
	var (
		best      Result
		haveBest  bool
		processed int
		succeeded int
		lastErr   error
	)

	for start := 0; start < len(pages) && !shouldStop(best, haveBest); start += pageBatchSize {
		end := start + pageBatchSize
		if end > len(pages) {
			end = len(pages)
		}
		batch := pages[start:end]
		outcomes := make([]pageOutcome, len(batch))

		var wg sync.WaitGroup
		for i, page := range batch {
			wg.Add(1)
			go func(i int, page string) {
				defer wg.Done()
				raw, err := client.ExtractFromText(ctx, page)
				if err != nil {
					outcomes[i] = pageOutcome{err: err}
					return
				}
				outcomes[i] = pageOutcome{result: parseResult(raw)}
			}(i, page)
		}
		wg.Wait()

		for _, out := range outcomes {
			processed++
			if out.err != nil {
				lastErr = out.err
				continue
			}
			succeeded++
			if !haveBest || betterResult(out.result, best) {
				best = out.result
				haveBest = true
			}
		}
	}

	if succeeded == 0 {
		return Result{}, pipelineFailure(lastErr)
	}
	if processed > 1 {
		note := fmt.Sprintf("Processed %d of %d pages", processed, len(pages))
		if best.Notes != "" {
			best.Notes += ". " + note
		} else {
			best.Notes = note
		}
	}
	return best, nil
}

// betterResult prefers more found fields, then higher confidence.
func betterResult(candidate, current Result) bool {
	cf, bf := completeness(candidate), completeness(current)
	if cf != bf {
		return cf > bf
	}
	return confidenceRank(candidate.Confidence) > confidenceRank(current.Confidence)
}

func shouldStop(best Result, haveBest bool) bool {
	if !haveBest {
		return false
	}
	found := completeness(best)
	if found == 3 {
		return true
	}
	return found >= earlyStopFields && best.Confidence == "high"
}

// pipelineFailure wraps a provider call error with its failure class.
func pipelineFailure(err error) error {
	if err == nil {
		return &PipelineError{Code: ErrorCodeInternal, Err: errors.New("no pages processed")}
	}
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return err
	}
	return &PipelineError{Code: classifyProviderError(err), Err: err}
}

func classifyProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "status 429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
		return ErrorCodeRateLimited
	case strings.Contains(msg, "empty content"), strings.Contains(msg, "missing choices"), strings.Contains(msg, "response parse"):
		return ErrorCodeInvalid
	}
	return ErrorCodeProvider
}
