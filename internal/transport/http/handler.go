package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"postpilot/internal/entity"
	"postpilot/internal/repository/postgresql"
	"postpilot/internal/service"
	"postpilot/internal/worker"
)

// Intake accepts scheduling requests (implementation: service.IntakeService).
type Intake interface {
	Schedule(ctx context.Context, req service.ScheduleRequest) ([]service.ScheduledJob, error)
}

// CycleRunner runs one processing cycle (implementation: worker.Runner).
type CycleRunner interface {
	RunCycle(ctx context.Context) (*worker.Report, error)
}

// JobReader serves user-scoped job reads and cancellation
// (implementation: postgresql.JobRepository).
type JobReader interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.PostJob, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) error
}

type Handler struct {
	intake Intake
	runner CycleRunner
	jobs   JobReader
}

func NewHandler(intake Intake, runner CycleRunner, jobs JobReader) *Handler {
	return &Handler{intake: intake, runner: runner, jobs: jobs}
}

type scheduleDTO struct {
	PostID       *string         `json:"postId,omitempty"`
	Content      string          `json:"content"`
	Platforms    []string        `json:"platforms"`
	ScheduleDate string          `json:"scheduleDate"`
	MediaURLs    []string        `json:"mediaUrls,omitempty"`
	Options      json.RawMessage `json:"options,omitempty"`
}

type scheduleResp struct {
	Jobs []service.ScheduledJob `json:"jobs"`
}

type runResp struct {
	Message   string   `json:"message"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

type jobResp struct {
	ID          string           `json:"id"`
	PostID      *string          `json:"postId,omitempty"`
	Platform    entity.Platform  `json:"platform"`
	Status      entity.JobStatus `json:"status"`
	RunAt       string           `json:"runAt"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"maxAttempts"`
	Error       *string          `json:"error,omitempty"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
}

// Schedule godoc
// @Summary Schedule a post across platforms
// @Description Creates one pending job per platform. Replaying the same request (same Idempotency-Key) returns the existing jobs.
// @Tags schedule
// @Accept json
// @Produce json
// @Param request body scheduleDTO true "scheduling request"
// @Success 201 {object} scheduleResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Router /schedule [post]
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto scheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	var postID *uuid.UUID
	if dto.PostID != nil {
		id, err := uuid.Parse(*dto.PostID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid postId")
			return
		}
		postID = &id
	}

	jobs, err := h.intake.Schedule(r.Context(), service.ScheduleRequest{
		UserID:         userID,
		PostID:         postID,
		Content:        dto.Content,
		Platforms:      dto.Platforms,
		ScheduleDate:   dto.ScheduleDate,
		MediaURLs:      dto.MediaURLs,
		Options:        dto.Options,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeValidationErr(w, vErr)
			return
		}
		writeErr(w, http.StatusInternalServerError, "schedule failed")
		return
	}

	writeJSON(w, http.StatusCreated, scheduleResp{Jobs: jobs})
}

// RunJobs godoc
// @Summary Run one processing cycle
// @Description Fetches due jobs, dispatches each once, reports per-job outcomes. Safe to call with nothing due.
// @Tags jobs
// @Produce json
// @Success 200 {object} runResp
// @Failure 500 {object} apiError
// @Router /jobs/run [post]
func (h *Handler) RunJobs(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunCycle(r.Context())
	if err != nil {
		// Only store unavailability reaches here; per-job failures are in
		// the report.
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	msg := "processed scheduled jobs"
	if report.Processed == 0 {
		msg = "no jobs due"
	}
	writeJSON(w, http.StatusOK, runResp{
		Message:   msg,
		Processed: report.Processed,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Errors:    report.Errors,
	})
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobs.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := jobResp{
		ID:          j.ID.String(),
		Platform:    j.Platform,
		Status:      j.Status,
		RunAt:       j.RunAt.Format(time.RFC3339),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	}
	if j.PostID != nil {
		s := j.PostID.String()
		resp.PostID = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob godoc
// @Summary Cancel a pending job
// @Description Only pending jobs can be cancelled; in-flight and terminal jobs are left alone.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 204 "cancelled"
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [delete]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.jobs.Cancel(r.Context(), userID, id); err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found or not pending")
			return
		}
		writeErr(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
