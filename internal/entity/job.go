package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further lifecycle mutation is permitted.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type JobType string

const (
	TypeFullAnalysis     JobType = "full_analysis"
	TypeExtraction       JobType = "extraction"
	TypeResearch         JobType = "research"
	TypeReportGeneration JobType = "report_generation"
)

func (t JobType) Valid() bool {
	switch t {
	case TypeFullAnalysis, TypeExtraction, TypeResearch, TypeReportGeneration:
		return true
	}
	return false
}

// Error codes stored in error_code. Only error_code/error_message cross the
// API boundary; internal error text stays in the logs.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNoFiles        = "NO_FILES"
	CodeIngestFailed   = "INGEST_FAILED"
	CodeNoSourceResult = "NO_SOURCE_RESULT"
	CodeInternal       = "INTERNAL_ERROR"
)

// Usage accounts for external AI calls made while processing a job.
type Usage struct {
	Requests     int   `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CostCents    int64 `json:"cost_cents"`
}

func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.Requests += other.Requests
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostCents += other.CostCents
}

// Job is one unit of asynchronous analysis work. Rows are mutated only
// through the repository lifecycle operations.
type Job struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Type      JobType   `json:"job_type"`
	Status    JobStatus `json:"status"`

	Input  json.RawMessage `json:"input_data"`
	Result json.RawMessage `json:"result_data,omitempty"`

	ProgressPercent int    `json:"progress_percent"`
	CurrentStep     string `json:"current_step,omitempty"`
	StepsCompleted  int    `json:"steps_completed"`
	TotalSteps      int    `json:"total_steps"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ErrorDetails json.RawMessage `json:"error_details,omitempty"`

	Usage Usage `json:"usage"`

	CreatedAt             time.Time  `json:"created_at"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	FailedAt              *time.Time `json:"failed_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
}
