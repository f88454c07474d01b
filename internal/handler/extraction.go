package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/worker"
)

// Document is one uploaded invoice file referenced by an extraction job.
type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ExtractedDocument is what the extractor pulls out of a single file.
type ExtractedDocument struct {
	Name       string          `json:"name"`
	VendorName string          `json:"vendor_name,omitempty"`
	LineItems  []LineItemInput `json:"line_items"`
	Hauls      []HaulInput     `json:"haul_events,omitempty"`
}

// DocumentExtractor turns an invoice file into structured rows. The real
// implementation calls a hosted model; tests use fakes.
type DocumentExtractor interface {
	Extract(ctx context.Context, doc Document) (*ExtractedDocument, *entity.Usage, error)
}

type ExtractionInput struct {
	Documents []Document `json:"documents"`
}

type ExtractionResult struct {
	Documents []ExtractedDocument `json:"documents"`
	Skipped   []string            `json:"skipped,omitempty"`
}

// ExtractionHandler runs the extractor over each document, reporting
// per-document progress. Individual extraction failures skip the document;
// the job only fails when there is nothing to work on.
type ExtractionHandler struct {
	extractor DocumentExtractor
}

func NewExtractionHandler(extractor DocumentExtractor) *ExtractionHandler {
	return &ExtractionHandler{extractor: extractor}
}

func (h *ExtractionHandler) Handle(ctx context.Context, job *entity.Job, rt worker.Runtime) (*worker.Result, error) {
	var input ExtractionInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, &worker.Failure{
			Code:    entity.CodeInvalidInput,
			Message: "input_data does not match the extraction schema",
		}
	}
	if len(input.Documents) == 0 {
		return nil, &worker.Failure{
			Code:    entity.CodeNoFiles,
			Message: "no documents to extract",
		}
	}

	total := len(input.Documents)
	usage := &entity.Usage{}
	result := ExtractionResult{}

	for i, doc := range input.Documents {
		if rt.Cancelled(ctx) {
			return nil, worker.ErrCancelled
		}

		extracted, docUsage, err := h.extractor.Extract(ctx, doc)
		usage.Add(docUsage)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", doc.Name, err))
		} else {
			result.Documents = append(result.Documents, *extracted)
		}

		rt.Progress(ctx, (i+1)*100/total, "extracted "+doc.Name, i+1, total)
	}

	if len(result.Documents) == 0 {
		details, _ := json.Marshal(map[string][]string{"skipped": result.Skipped})
		return nil, &worker.Failure{
			Code:    entity.CodeNoFiles,
			Message: "every document failed extraction",
			Details: details,
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &worker.Result{Data: data, Usage: usage}, nil
}
