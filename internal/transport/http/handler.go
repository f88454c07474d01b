package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wastewise-service/internal/entity"
	"wastewise-service/internal/repository/postgresql"
	"wastewise-service/internal/service"
)

type Handler struct {
	jobSvc *service.JobService
}

func NewHandler(jobSvc *service.JobService) *Handler {
	return &Handler{jobSvc: jobSvc}
}

type createJobDTO struct {
	ProjectID  string          `json:"project_id"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"job_type"`
	Input      json.RawMessage `json:"input_data,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
}

type createJobResp struct {
	ID     string           `json:"id"`
	Status entity.JobStatus `json:"status"`
}

type jobResp struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"project_id"`
	Type      entity.JobType   `json:"job_type"`
	Status    entity.JobStatus `json:"status"`

	ProgressPercent int    `json:"progress_percent"`
	CurrentStep     string `json:"current_step,omitempty"`
	StepsCompleted  int    `json:"steps_completed"`
	TotalSteps      int    `json:"total_steps"`

	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`

	Usage entity.Usage `json:"usage"`

	CreatedAt             string  `json:"created_at"`
	StartedAt             *string `json:"started_at,omitempty"`
	CompletedAt           *string `json:"completed_at,omitempty"`
	FailedAt              *string `json:"failed_at,omitempty"`
	EstimatedCompletionAt *string `json:"estimated_completion_at,omitempty"`
}

type cleanupResp struct {
	Removed int64 `json:"removed"`
}

func toJobResp(j *entity.Job) jobResp {
	resp := jobResp{
		ID:              j.ID.String(),
		ProjectID:       j.ProjectID.String(),
		Type:            j.Type,
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent,
		CurrentStep:     j.CurrentStep,
		StepsCompleted:  j.StepsCompleted,
		TotalSteps:      j.TotalSteps,
		ErrorCode:       j.ErrorCode,
		ErrorMessage:    j.ErrorMessage,
		Usage:           j.Usage,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
	}
	resp.StartedAt = fmtTime(j.StartedAt)
	resp.CompletedAt = fmtTime(j.CompletedAt)
	resp.FailedAt = fmtTime(j.FailedAt)
	resp.EstimatedCompletionAt = fmtTime(j.EstimatedCompletionAt)
	return resp
}

func fmtTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// CreateJob godoc
// @Summary Enqueue an analysis job
// @Description Records the job as pending; a worker picks it up on its next poll.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job payload"
// @Success 201 {object} createJobResp
// @Failure 400 {object} errorBody
// @Failure 500 {object} errorBody
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	projectID, err := uuid.Parse(dto.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project_id")
		return
	}
	userID, err := uuid.Parse(dto.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	job, err := h.jobSvc.Enqueue(r.Context(), service.EnqueueRequest{
		ProjectID:  projectID,
		UserID:     userID,
		Type:       dto.Type,
		Input:      dto.Input,
		MaxRetries: dto.MaxRetries,
	})
	if err != nil {
		var verrs validator.ValidationErrors
		var verr *service.ValidationError
		if errors.As(err, &verrs) || errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{ID: job.ID.String(), Status: job.Status})
}

// GetJob godoc
// @Summary Get job status and progress
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	job, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResp(job))
}

// GetJobResult godoc
// @Summary Get the raw result of a completed job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /jobs/{id}/result [get]
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	job, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job.Status != entity.StatusCompleted {
		writeError(w, http.StatusConflict, "job not completed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Result)
}

// CancelJob godoc
// @Summary Request cooperative cancellation
// @Description Flips the status flag; a worker mid-job stops at its next checkpoint.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /jobs/{id}/cancel [post]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.jobSvc.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, postgresql.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, postgresql.ErrTerminal):
			writeError(w, http.StatusConflict, "job already finished")
		default:
			writeError(w, http.StatusInternalServerError, "failed to cancel job")
		}
		return
	}

	job, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, toJobResp(job))
}

// ListProjectJobs godoc
// @Summary List a project's jobs, latest first
// @Tags jobs
// @Produce json
// @Param projectID path string true "project id (uuid)"
// @Param limit query int false "max rows (default 50)"
// @Success 200 {array} jobResp
// @Failure 400 {object} errorBody
// @Router /projects/{projectID}/jobs [get]
func (h *Handler) ListProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	jobs, err := h.jobSvc.ListProjectJobs(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := make([]jobResp, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResp(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cleanup godoc
// @Summary Purge terminal jobs past retention
// @Tags admin
// @Produce json
// @Success 200 {object} cleanupResp
// @Failure 500 {object} errorBody
// @Router /admin/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.jobSvc.Cleanup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, cleanupResp{Removed: removed})
}
