package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/worker"
)

type fakeExtractor struct {
	failNames map[string]bool
}

func (e *fakeExtractor) Extract(ctx context.Context, doc Document) (*ExtractedDocument, *entity.Usage, error) {
	usage := &entity.Usage{Requests: 1, InputTokens: 500, OutputTokens: 200, CostCents: 3}
	if e.failNames[doc.Name] {
		return nil, usage, errors.New("unreadable scan")
	}
	return &ExtractedDocument{
		Name: doc.Name,
		LineItems: []LineItemInput{
			{Description: "base service", Category: entity.CategoryBase, AmountCents: 100000},
		},
	}, usage, nil
}

func extractionJob(t *testing.T, docs ...Document) *entity.Job {
	t.Helper()
	data, err := json.Marshal(ExtractionInput{Documents: docs})
	if err != nil {
		t.Fatal(err)
	}
	return &entity.Job{ID: uuid.New(), Type: entity.TypeExtraction, Input: data}
}

func TestExtractionHandler_ExtractsAllDocuments(t *testing.T) {
	h := NewExtractionHandler(&fakeExtractor{})
	rt := &fakeRuntime{}

	job := extractionJob(t,
		Document{Name: "jan.pdf", URL: "s3://invoices/jan.pdf"},
		Document{Name: "feb.pdf", URL: "s3://invoices/feb.pdf"},
	)

	res, err := h.Handle(context.Background(), job, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result ExtractionResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 extracted documents, got %d", len(result.Documents))
	}
	if res.Usage == nil || res.Usage.Requests != 2 || res.Usage.CostCents != 6 {
		t.Fatalf("usage not accumulated: %+v", res.Usage)
	}
	if len(rt.progress) != 2 || rt.progress[1] != 100 {
		t.Fatalf("expected per-document progress ending at 100, got %v", rt.progress)
	}
}

func TestExtractionHandler_NoDocuments(t *testing.T) {
	h := NewExtractionHandler(&fakeExtractor{})

	_, err := h.Handle(context.Background(), extractionJob(t), &fakeRuntime{})

	var failure *worker.Failure
	if !errors.As(err, &failure) || failure.Code != entity.CodeNoFiles {
		t.Fatalf("expected NO_FILES, got %v", err)
	}
}

func TestExtractionHandler_BadDocumentIsSkipped(t *testing.T) {
	h := NewExtractionHandler(&fakeExtractor{failNames: map[string]bool{"feb.pdf": true}})

	job := extractionJob(t,
		Document{Name: "jan.pdf"},
		Document{Name: "feb.pdf"},
	)

	res, err := h.Handle(context.Background(), job, &fakeRuntime{})
	if err != nil {
		t.Fatalf("one bad document must not fail the job: %v", err)
	}

	var result ExtractionResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Documents) != 1 || len(result.Skipped) != 1 {
		t.Fatalf("expected 1 extracted and 1 skipped, got %d/%d", len(result.Documents), len(result.Skipped))
	}
	// Usage counts the failed attempt too.
	if res.Usage.Requests != 2 {
		t.Fatalf("expected 2 requests in usage, got %d", res.Usage.Requests)
	}
}

func TestExtractionHandler_AllDocumentsFail(t *testing.T) {
	h := NewExtractionHandler(&fakeExtractor{failNames: map[string]bool{"jan.pdf": true}})

	_, err := h.Handle(context.Background(), extractionJob(t, Document{Name: "jan.pdf"}), &fakeRuntime{})

	var failure *worker.Failure
	if !errors.As(err, &failure) || failure.Code != entity.CodeNoFiles {
		t.Fatalf("expected NO_FILES when nothing extracts, got %v", err)
	}
}
