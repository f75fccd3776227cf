package workerproc

import (
	"context"
	"errors"
	"testing"

	"dme-backend/internal/bootstrap"
	"dme-backend/internal/queue"
)

type stubProcessor struct {
	calls []string
	err   error
}

func (s *stubProcessor) Process(_ context.Context, documentID string) error {
	s.calls = append(s.calls, documentID)
	return s.err
}

func TestComputeMeta(t *testing.T) {
	meta := ComputeMeta("")
	if meta.BodyLen != 0 || meta.BodySHA != "" {
		t.Fatalf("expected empty meta, got %+v", meta)
	}

	meta = ComputeMeta("abc")
	if meta.BodyLen != 3 {
		t.Fatalf("expected body length 3, got %d", meta.BodyLen)
	}
	if meta.BodySHA != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha: %s", meta.BodySHA)
	}
}

func TestParseMessageEmptyBody(t *testing.T) {
	_, meta, err := ParseMessage("   ")
	var empty ErrEmptyBody
	if !errors.As(err, &empty) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if meta.BodyLen != 3 {
		t.Fatalf("expected meta for raw body, got %+v", meta)
	}
}

func TestParseMessageInvalidJSON(t *testing.T) {
	_, _, err := ParseMessage("{not json")
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if decode.Err == nil {
		t.Fatal("expected wrapped decode error")
	}
}

func TestParseMessageMissingDocumentID(t *testing.T) {
	_, _, err := ParseMessage(`{"requestId":"req-1"}`)
	var missing ErrMissingDocumentID
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingDocumentID, got %v", err)
	}
	if missing.RequestID != "req-1" {
		t.Fatalf("expected request id carried over, got %q", missing.RequestID)
	}
}

func TestParseMessageRoundTrip(t *testing.T) {
	payload, err := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-1", Version: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, meta, err := ParseMessage(string(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.DocumentID != "doc-1" || msg.RequestID != "req-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if meta.BodyLen != len(payload) {
		t.Fatalf("expected meta length %d, got %d", len(payload), meta.BodyLen)
	}
}

func TestHandleMessageProcessesDocument(t *testing.T) {
	stub := &stubProcessor{}
	app := &bootstrap.App{ExtractionProcessor: stub}

	payload, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-1"})
	if err := HandleMessage(context.Background(), app, string(payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(stub.calls) != 1 || stub.calls[0] != "doc-1" {
		t.Fatalf("expected processor called with doc-1, got %v", stub.calls)
	}
}

func TestHandleMessageWrapsProcessorError(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubProcessor{err: boom}
	app := &bootstrap.App{ExtractionProcessor: stub}

	payload, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-1"})
	err := HandleMessage(context.Background(), app, string(payload))

	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if procErr.DocumentID != "doc-1" || procErr.RequestID != "req-1" {
		t.Fatalf("unexpected error fields: %+v", procErr)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected wrapped cause to survive")
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	stub := &stubProcessor{}
	app := &bootstrap.App{ExtractionProcessor: stub}

	ctx := WithParsedMessage(context.Background(), queue.Message{DocumentID: "doc-9", RequestID: "req-9"})
	if err := HandleMessage(ctx, app, "ignored body"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(stub.calls) != 1 || stub.calls[0] != "doc-9" {
		t.Fatalf("expected processor called with doc-9, got %v", stub.calls)
	}
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	if err := HandleMessage(context.Background(), nil, "{}"); err == nil {
		t.Fatal("expected error for missing app")
	}

	err := HandleMessage(context.Background(), &bootstrap.App{}, "{}")
	if err == nil || err.Error() != "extraction service not configured" {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
