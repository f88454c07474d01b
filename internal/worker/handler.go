package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wastewise-service/internal/entity"
)

// Result is a handler's successful outcome.
type Result struct {
	Data  json.RawMessage
	Usage *entity.Usage
}

// Failure is a business-level outcome a handler reports instead of an
// internal error. The worker stores Code/Message on the job; Details goes
// to error_details.
type Failure struct {
	Code    string
	Message string
	Details json.RawMessage
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// ErrCancelled is returned by a handler that observed a cooperative cancel
// and stopped at a checkpoint. The worker leaves the job as-is: Cancel
// already moved it to its terminal state.
var ErrCancelled = errors.New("job cancelled")

// Runtime is what a running handler may do with its job: report progress
// and observe cooperative cancellation. Both are best-effort; progress
// errors are swallowed and logged by the loop.
type Runtime interface {
	Progress(ctx context.Context, percent int, step string, stepsCompleted, totalSteps int)
	Cancelled(ctx context.Context) bool
}

// Handler holds the domain logic for one job type. It runs synchronously to
// completion; returning *Failure marks a domain failure, any other error an
// internal one.
type Handler interface {
	Handle(ctx context.Context, job *entity.Job, rt Runtime) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *entity.Job, rt Runtime) (*Result, error)

func (f HandlerFunc) Handle(ctx context.Context, job *entity.Job, rt Runtime) (*Result, error) {
	return f(ctx, job, rt)
}

// Registry maps job types to handlers. Registration happens at process
// start; lookups are read-only afterwards.
type Registry struct {
	handlers map[entity.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[entity.JobType]Handler)}
}

func (r *Registry) Register(t entity.JobType, h Handler) {
	r.handlers[t] = h
}

func (r *Registry) Lookup(t entity.JobType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}
