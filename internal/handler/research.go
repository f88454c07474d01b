package handler

import (
	"context"
	"encoding/json"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/worker"
)

// OrdinanceCache is the Redis-backed lookup cache for municipal ordinances.
type OrdinanceCache interface {
	Get(ctx context.Context, jurisdiction string) (string, bool, error)
	Set(ctx context.Context, jurisdiction, text string) error
}

// OrdinanceSource fetches ordinance text from the upstream research provider.
// It may be nil when the deployment has no provider configured.
type OrdinanceSource interface {
	Lookup(ctx context.Context, jurisdiction string) (string, *entity.Usage, error)
}

type ResearchInput struct {
	Jurisdiction string `json:"jurisdiction"`
}

type ResearchResult struct {
	Jurisdiction string `json:"jurisdiction"`
	Ordinance    string `json:"ordinance,omitempty"`
	Cached       bool   `json:"cached"`
	Available    bool   `json:"available"`
}

// ResearchHandler answers regulatory lookups from cache first, falling back
// to the upstream source and writing the answer back for the next job.
type ResearchHandler struct {
	cache  OrdinanceCache
	source OrdinanceSource
}

func NewResearchHandler(cache OrdinanceCache, source OrdinanceSource) *ResearchHandler {
	return &ResearchHandler{cache: cache, source: source}
}

func (h *ResearchHandler) Handle(ctx context.Context, job *entity.Job, rt worker.Runtime) (*worker.Result, error) {
	var input ResearchInput
	if err := json.Unmarshal(job.Input, &input); err != nil || input.Jurisdiction == "" {
		return nil, &worker.Failure{
			Code:    entity.CodeInvalidInput,
			Message: "jurisdiction is required",
		}
	}

	result := ResearchResult{Jurisdiction: input.Jurisdiction}

	if h.cache != nil {
		text, hit, err := h.cache.Get(ctx, input.Jurisdiction)
		if err == nil && hit {
			result.Ordinance = text
			result.Cached = true
			result.Available = true
			return marshalResult(result, nil)
		}
		// Cache errors degrade to a source lookup.
	}

	rt.Progress(ctx, 50, "querying ordinance source", 1, 2)
	if rt.Cancelled(ctx) {
		return nil, worker.ErrCancelled
	}

	if h.source == nil {
		// No provider configured; the job still completes so callers can
		// distinguish "unavailable" from a failure.
		return marshalResult(result, nil)
	}

	text, usage, err := h.source.Lookup(ctx, input.Jurisdiction)
	if err != nil {
		return nil, err
	}
	result.Ordinance = text
	result.Available = true

	if h.cache != nil {
		_ = h.cache.Set(ctx, input.Jurisdiction, text)
	}

	return marshalResult(result, usage)
}

func marshalResult(v any, usage *entity.Usage) (*worker.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &worker.Result{Data: data, Usage: usage}, nil
}
