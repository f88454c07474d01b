// Package worker runs the single-threaded poll loop: claim the oldest
// pending job, run its domain handler synchronously, report the outcome,
// back off on empty polls. One job is in flight per process at a time;
// scale-out is by running more worker processes, and correctness across
// them rests solely on the repository's skip-locked Claim.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/repository/postgresql"
)

// JobStore is the repository surface the loop needs.
type JobStore interface {
	Claim(ctx context.Context) (*entity.Job, error)
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, usage *entity.Usage) error
	Fail(ctx context.Context, id uuid.UUID, code, message string, details json.RawMessage) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int, step string, stepsCompleted, totalSteps int) error
	Status(ctx context.Context, id uuid.UUID) (entity.JobStatus, error)
}

// maxConsecutiveClaimErrors before the loop gives up and exits for a
// process-supervisor restart. Transient store hiccups below this threshold
// are logged and retried on the next tick.
const maxConsecutiveClaimErrors = 5

type Loop struct {
	store    JobStore
	registry *Registry
	backoff  *Backoff
	logger   *slog.Logger
}

func NewLoop(store JobStore, registry *Registry, backoff *Backoff, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		store:    store,
		registry: registry,
		backoff:  backoff,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled or the store is deemed unrecoverable.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("worker loop started")

	claimErrors := 0
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("worker loop stopping")
			return nil
		default:
		}

		worked, err := l.PollOnce(ctx)
		if err != nil {
			claimErrors++
			l.logger.Error("claim failed", "error", err, "consecutive", claimErrors)
			if claimErrors >= maxConsecutiveClaimErrors {
				l.logger.Error("store unreachable, terminating for supervisor restart")
				return err
			}
			l.sleep(ctx, l.backoff.Next())
			continue
		}
		claimErrors = 0

		if worked {
			l.backoff.Reset()
			continue
		}
		l.sleep(ctx, l.backoff.Next())
	}
}

// PollOnce claims and processes at most one job. It returns whether a job
// was claimed; the error is non-nil only for claim-level store failures.
// Handler outcomes are reported to the store, never propagated.
func (l *Loop) PollOnce(ctx context.Context) (bool, error) {
	job, err := l.store.Claim(ctx)
	if err != nil {
		if errors.Is(err, postgresql.ErrNoJob) {
			return false, nil
		}
		return false, err
	}

	l.process(ctx, job)
	return true, nil
}

func (l *Loop) process(ctx context.Context, job *entity.Job) {
	log := l.logger.With("job_id", job.ID, "job_type", job.Type)
	start := time.Now()

	if len(job.Input) > 0 && !json.Valid(job.Input) {
		log.Warn("malformed input_data at claim time")
		l.fail(ctx, log, job.ID, entity.CodeInvalidInput, "input_data is not valid JSON", nil)
		return
	}

	handler, ok := l.registry.Lookup(job.Type)
	if !ok {
		log.Warn("no handler registered for job type")
		l.fail(ctx, log, job.ID, entity.CodeInvalidInput, "no handler registered for job type "+string(job.Type), nil)
		return
	}

	log.Info("job claimed")

	result, err := l.handleSafe(ctx, handler, job)

	switch {
	case err == nil:
		var data json.RawMessage
		var usage *entity.Usage
		if result != nil {
			data = result.Data
			usage = result.Usage
		}
		if cerr := l.store.Complete(ctx, job.ID, data, usage); cerr != nil {
			if errors.Is(cerr, postgresql.ErrTerminal) {
				// Cancelled (or otherwise finalized) while the handler ran.
				log.Warn("completion rejected, job already terminal")
			} else {
				log.Error("complete failed", "error", cerr)
			}
			return
		}
		log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())

	case errors.Is(err, ErrCancelled):
		log.Info("handler stopped at cancellation checkpoint")

	default:
		var failure *Failure
		if errors.As(err, &failure) {
			l.fail(ctx, log, job.ID, failure.Code, failure.Message, failure.Details)
			log.Warn("job failed", "error_code", failure.Code, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		// Unexpected handler error: generic code outward, real error to logs.
		log.Error("handler error", "error", err, "duration_ms", time.Since(start).Milliseconds())
		l.fail(ctx, log, job.ID, entity.CodeInternal, "internal error", nil)
	}
}

// handleSafe converts handler panics into errors so one bad job cannot take
// the worker process down.
func (l *Loop) handleSafe(ctx context.Context, handler Handler, job *entity.Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic recovered in handler", "job_id", job.ID, "panic", r)
			err = &panicError{value: r}
		}
	}()
	return handler.Handle(ctx, job, &runtime{loop: l, jobID: job.ID})
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "handler panic" }

func (l *Loop) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, code, message string, details json.RawMessage) {
	if err := l.store.Fail(ctx, id, code, message, details); err != nil {
		if errors.Is(err, postgresql.ErrTerminal) {
			log.Warn("fail rejected, job already terminal")
			return
		}
		log.Error("fail call errored", "error", err)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// runtime is the Runtime handed to handlers.
type runtime struct {
	loop  *Loop
	jobID uuid.UUID
}

func (rt *runtime) Progress(ctx context.Context, percent int, step string, stepsCompleted, totalSteps int) {
	if err := rt.loop.store.UpdateProgress(ctx, rt.jobID, percent, step, stepsCompleted, totalSteps); err != nil {
		rt.loop.logger.Warn("progress update failed", "job_id", rt.jobID, "error", err)
	}
}

func (rt *runtime) Cancelled(ctx context.Context) bool {
	status, err := rt.loop.store.Status(ctx, rt.jobID)
	if err != nil {
		rt.loop.logger.Warn("cancellation check failed", "job_id", rt.jobID, "error", err)
		return false
	}
	return status == entity.StatusCancelled
}
