package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wastewise-service/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNoJob means no pending job was claimable (none exist or all are
	// locked by concurrent claimers).
	ErrNoJob = errors.New("no pending job")

	// ErrTerminal means the job is already completed, failed or cancelled
	// and the requested transition was rejected.
	ErrTerminal = errors.New("job already in terminal state")
)

const jobColumns = `
	id, project_id, user_id, job_type, status,
	input_data, result_data,
	progress_percent, current_step, steps_completed, total_steps,
	retry_count, max_retries,
	error_code, error_message, error_details,
	ai_requests, ai_input_tokens, ai_output_tokens, ai_cost_cents,
	created_at, started_at, completed_at, failed_at, updated_at, estimated_completion_at`

// JobRepository is the only legal mutator of analysis_jobs rows. Every
// lifecycle transition is a single conditional statement so that invariants
// hold regardless of how many workers run concurrently.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

type CreateJobParams struct {
	ProjectID  uuid.UUID
	UserID     uuid.UUID
	Type       entity.JobType
	Input      json.RawMessage
	MaxRetries int
}

// Create inserts a pending job with progress 0.
func (r *JobRepository) Create(ctx context.Context, p CreateJobParams) (*entity.Job, error) {
	if len(p.Input) == 0 {
		p.Input = json.RawMessage(`{}`)
	}

	q := `
INSERT INTO analysis_jobs (id, project_id, user_id, job_type, status, input_data, max_retries)
VALUES ($1, $2, $3, $4, 'pending', $5, $6)
RETURNING` + jobColumns

	row := r.pool.QueryRow(ctx, q, uuid.New(), p.ProjectID, p.UserID, string(p.Type), p.Input, p.MaxRetries)
	return scanJob(row)
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := `SELECT` + jobColumns + ` FROM analysis_jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByProject returns a project's jobs, latest first.
func (r *JobRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT` + jobColumns + `
FROM analysis_jobs
WHERE project_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.pool.Query(ctx, q, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim atomically transfers the oldest pending job to the caller. Rows
// locked by concurrent claimers are skipped, never waited on; ties on
// created_at break by id. Returns ErrNoJob when nothing is claimable.
func (r *JobRepository) Claim(ctx context.Context) (*entity.Job, error) {
	q := `
WITH next_job AS (
	SELECT id AS job_id FROM analysis_jobs
	WHERE status = 'pending'
	ORDER BY created_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE analysis_jobs j
SET status = 'processing', started_at = NOW(), updated_at = NOW()
FROM next_job
WHERE j.id = next_job.job_id
RETURNING` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJob
		}
		return nil, err
	}
	return job, nil
}

// Start marks a pending job processing. A no-op when the job is already
// processing; rejected when terminal.
func (r *JobRepository) Start(ctx context.Context, id uuid.UUID) error {
	q := `
UPDATE analysis_jobs
SET status = 'processing',
    started_at = COALESCE(started_at, NOW()),
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing')`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyRejection(ctx, id)
	}
	return nil
}

// UpdateProgress clamps percent to be non-decreasing and refreshes the
// completion estimate. Only processing jobs are touched; updates against a
// job that already left processing are silently dropped so handlers can
// keep reporting across a racing Cancel.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, step string, stepsCompleted, totalSteps int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	q := `
UPDATE analysis_jobs
SET progress_percent = GREATEST(progress_percent, $2),
    current_step = COALESCE(NULLIF($3, ''), current_step),
    steps_completed = GREATEST(steps_completed, $4),
    total_steps = CASE WHEN $5 > 0 THEN $5 ELSE total_steps END,
    estimated_completion_at = CASE
        WHEN GREATEST(progress_percent, $2) BETWEEN 1 AND 99 AND started_at IS NOT NULL
        THEN NOW() + (NOW() - started_at) * ((100 - GREATEST(progress_percent, $2))::float / GREATEST(progress_percent, $2))
        ELSE estimated_completion_at
    END,
    updated_at = NOW()
WHERE id = $1 AND status = 'processing'`

	_, err := r.pool.Exec(ctx, q, id, percent, step, stepsCompleted, totalSteps)
	return err
}

// Complete stores the result and usage counters and moves the job to
// completed. Rejected with ErrTerminal if the job already reached a
// terminal state (e.g. a cooperative cancel won the race).
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, usage *entity.Usage) error {
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	var u entity.Usage
	if usage != nil {
		u = *usage
	}

	q := `
UPDATE analysis_jobs
SET status = 'completed',
    result_data = $2,
    progress_percent = 100,
    ai_requests = $3, ai_input_tokens = $4, ai_output_tokens = $5, ai_cost_cents = $6,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`

	tag, err := r.pool.Exec(ctx, q, id, result, u.Requests, u.InputTokens, u.OutputTokens, u.CostCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyRejection(ctx, id)
	}
	return nil
}

// Fail stores the error fields and moves the job to failed. Rejected with
// ErrTerminal if the job is already terminal.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, code, message string, details json.RawMessage) error {
	q := `
UPDATE analysis_jobs
SET status = 'failed',
    error_code = $2,
    error_message = $3,
    error_details = $4,
    failed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`

	tag, err := r.pool.Exec(ctx, q, id, code, message, details)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyRejection(ctx, id)
	}
	return nil
}

// Cancel flips a non-terminal job to cancelled. Cooperative only: a running
// handler must observe the status itself; nothing is interrupted here.
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	q := `
UPDATE analysis_jobs
SET status = 'cancelled', updated_at = NOW()
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyRejection(ctx, id)
	}
	return nil
}

// Status reads just the status column. Used by handlers as the cooperative
// cancellation checkpoint.
func (r *JobRepository) Status(ctx context.Context, id uuid.UUID) (entity.JobStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return entity.JobStatus(status), nil
}

// CountByStatus returns the number of jobs in each status. Statuses with no
// rows are absent from the map. Operator tooling uses this alongside the
// retry/failure fields to watch queue health.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[entity.JobStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[entity.JobStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[entity.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// DeleteTerminalBefore removes terminal jobs whose terminal transition is
// older than the retention window and returns the count removed. Cancelled
// rows have no completed_at/failed_at, so updated_at stands in for them.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, retention time.Duration) (int64, error) {
	q := `
DELETE FROM analysis_jobs
WHERE status IN ('completed', 'failed', 'cancelled')
  AND COALESCE(completed_at, failed_at, updated_at) < NOW() - $1::interval`

	tag, err := r.pool.Exec(ctx, q, fmt.Sprintf("%d seconds", int64(retention.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// classifyRejection distinguishes "row missing" from "row terminal" after a
// conditional update matched nothing.
func (r *JobRepository) classifyRejection(ctx context.Context, id uuid.UUID) error {
	status, err := r.Status(ctx, id)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return ErrTerminal
	}
	return ErrNotFound
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job         entity.Job
		jobType     string
		statusText  string
		inputBytes  []byte
		resultBytes []byte
		detailBytes []byte
	)

	err := row.Scan(
		&job.ID, &job.ProjectID, &job.UserID, &jobType, &statusText,
		&inputBytes, &resultBytes,
		&job.ProgressPercent, &job.CurrentStep, &job.StepsCompleted, &job.TotalSteps,
		&job.RetryCount, &job.MaxRetries,
		&job.ErrorCode, &job.ErrorMessage, &detailBytes,
		&job.Usage.Requests, &job.Usage.InputTokens, &job.Usage.OutputTokens, &job.Usage.CostCents,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.FailedAt, &job.UpdatedAt, &job.EstimatedCompletionAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = entity.JobType(jobType)
	job.Status = entity.JobStatus(statusText)
	job.Input = json.RawMessage(inputBytes)
	if resultBytes != nil {
		job.Result = json.RawMessage(resultBytes)
	}
	if detailBytes != nil {
		job.ErrorDetails = json.RawMessage(detailBytes)
	}

	return &job, nil
}
