package llm

import "context"

// Client abstracts chat-completion providers for patient field extraction.
// Both methods return the raw model output; callers own parsing.
type Client interface {
	ExtractFromText(ctx context.Context, text string) (string, error)
	ExtractFromImage(ctx context.Context, mimeType string, data []byte) (string, error)
}
