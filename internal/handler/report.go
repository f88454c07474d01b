package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/repository/postgresql"
	"wastewise-service/internal/worker"
)

// JobReader loads the source job a report is generated from.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

// ReportRenderer turns an analysis result into a delivered artifact (Excel
// workbook, HTML dashboard) and returns its location.
type ReportRenderer interface {
	Render(ctx context.Context, format string, analysisResult json.RawMessage) (string, error)
}

type ReportInput struct {
	SourceJobID uuid.UUID `json:"source_job_id"`
	Formats     []string  `json:"formats,omitempty"`
}

type ReportResult struct {
	SourceJobID uuid.UUID         `json:"source_job_id"`
	Artifacts   map[string]string `json:"artifacts"`
}

var defaultFormats = []string{"excel", "html"}

// ReportHandler renders report artifacts from a completed analysis job's
// stored result.
type ReportHandler struct {
	jobs     JobReader
	renderer ReportRenderer
}

func NewReportHandler(jobs JobReader, renderer ReportRenderer) *ReportHandler {
	return &ReportHandler{jobs: jobs, renderer: renderer}
}

func (h *ReportHandler) Handle(ctx context.Context, job *entity.Job, rt worker.Runtime) (*worker.Result, error) {
	var input ReportInput
	if err := json.Unmarshal(job.Input, &input); err != nil || input.SourceJobID == uuid.Nil {
		return nil, &worker.Failure{
			Code:    entity.CodeInvalidInput,
			Message: "source_job_id is required",
		}
	}

	source, err := h.jobs.GetByID(ctx, input.SourceJobID)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return nil, &worker.Failure{
				Code:    entity.CodeNoSourceResult,
				Message: "source job does not exist",
			}
		}
		return nil, err
	}
	if source.Status != entity.StatusCompleted || len(source.Result) == 0 {
		return nil, &worker.Failure{
			Code:    entity.CodeNoSourceResult,
			Message: "source job has no completed result to report on",
		}
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = defaultFormats
	}

	result := ReportResult{
		SourceJobID: input.SourceJobID,
		Artifacts:   make(map[string]string, len(formats)),
	}

	for i, format := range formats {
		if rt.Cancelled(ctx) {
			return nil, worker.ErrCancelled
		}
		location, err := h.renderer.Render(ctx, format, source.Result)
		if err != nil {
			return nil, err
		}
		result.Artifacts[format] = location
		rt.Progress(ctx, (i+1)*100/len(formats), "rendered "+format, i+1, len(formats))
	}

	return marshalResult(result, nil)
}
