// Package service sits between HTTP transport and the repository. It owns
// request validation and maps the repository's lifecycle rules to API
// semantics; it never touches SQL itself.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/repository/postgresql"
)

const defaultMaxRetries = 3

// JobRepository is the persistence surface the service needs.
type JobRepository interface {
	Create(ctx context.Context, p postgresql.CreateJobParams) (*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*entity.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	DeleteTerminalBefore(ctx context.Context, retention time.Duration) (int64, error)
}

type JobService struct {
	repo      JobRepository
	validate  *validator.Validate
	retention time.Duration
}

func NewJobService(repo JobRepository, validate *validator.Validate, retention time.Duration) *JobService {
	if validate == nil {
		validate = validator.New()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &JobService{repo: repo, validate: validate, retention: retention}
}

type EnqueueRequest struct {
	ProjectID  uuid.UUID       `json:"project_id" validate:"required"`
	UserID     uuid.UUID       `json:"user_id" validate:"required"`
	Type       string          `json:"job_type" validate:"required,oneof=full_analysis extraction research report_generation"`
	Input      json.RawMessage `json:"input_data,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// Enqueue validates the request and records the job as pending. Workers pick
// it up on their next poll; nothing is signalled.
func (s *JobService) Enqueue(ctx context.Context, req EnqueueRequest) (*entity.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return nil, &ValidationError{Field: "input_data", Reason: "must be valid JSON"}
	}

	// nil means the caller left it unset; an explicit 0 disables retries.
	maxRetries := defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	return s.repo.Create(ctx, postgresql.CreateJobParams{
		ProjectID:  req.ProjectID,
		UserID:     req.UserID,
		Type:       entity.JobType(req.Type),
		Input:      req.Input,
		MaxRetries: maxRetries,
	})
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *JobService) ListProjectJobs(ctx context.Context, projectID uuid.UUID, limit int) ([]*entity.Job, error) {
	return s.repo.ListByProject(ctx, projectID, limit)
}

// Cancel flips the status flag. A worker already processing the job keeps
// running until its next checkpoint; its late result is then discarded.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.repo.Cancel(ctx, id)
}

// Cleanup removes terminal jobs older than the configured retention and
// returns how many were purged.
func (s *JobService) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.DeleteTerminalBefore(ctx, s.retention)
}

// ValidationError covers request problems the struct tags cannot express.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
