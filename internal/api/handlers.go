package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"postpilot/internal/db"
	"postpilot/internal/types"
)

// PlannerService is the planner surface the API needs.
type PlannerService interface {
	PlanForDate(ctx context.Context, date time.Time) (*types.PlanSummary, error)
	ScheduleImmediate(ctx context.Context, accountID string, platform types.Platform) (*types.Job, error)
}

// DispatcherService is the dispatcher surface the API needs.
type DispatcherService interface {
	DispatchDueAsOf(ctx context.Context, now time.Time) (*types.DispatchSummary, error)
}

// JobReader is the read-only job store surface the API needs.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*types.Job, error)
	List(ctx context.Context, filter db.JobListFilter) ([]*types.Job, error)
}

// Handler carries the dependencies for all ops endpoints.
type Handler struct {
	planner    PlannerService
	dispatcher DispatcherService
	jobs       JobReader

	// planningLoc resolves date-only parameters ("today", day bounds).
	planningLoc *time.Location
	validate    *validator.Validate
	now         func() time.Time
	logger      *slog.Logger
	version     string
}

// HandlerConfig holds the dependencies for creating a Handler.
type HandlerConfig struct {
	Planner     PlannerService
	Dispatcher  DispatcherService
	Jobs        JobReader
	PlanningLoc *time.Location
	Now         func() time.Time
	Logger      *slog.Logger
	Version     string
}

// NewHandler creates a Handler with the given configuration.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	loc := cfg.PlanningLoc
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		planner:     cfg.Planner,
		dispatcher:  cfg.Dispatcher,
		jobs:        cfg.Jobs,
		planningLoc: loc,
		validate:    validator.New(),
		now:         now,
		logger:      logger,
		version:     cfg.Version,
	}
}

// Health responds with service status and build version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

type runPlannerRequest struct {
	// Date is the calendar day to plan for, "YYYY-MM-DD". Empty means today
	// in the planning timezone.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// RunPlanner triggers one planning cycle. Infrastructure failures surface as
// errors; per-account failures come back inside the summary.
func (h *Handler) RunPlanner(w http.ResponseWriter, r *http.Request) {
	var req runPlannerRequest
	if r.ContentLength != 0 {
		if err := Decode(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err))
		return
	}

	date := h.now().In(h.planningLoc)
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, h.planningLoc)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err))
			return
		}
		date = parsed
	}

	summary, err := h.planner.PlanForDate(r.Context(), date)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, summary)
}

// RunDispatcher triggers one dispatch cycle as of now.
func (h *Handler) RunDispatcher(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.DispatchDueAsOf(r.Context(), h.now())
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, summary)
}

type publishNowRequest struct {
	Platform string `json:"platform" validate:"omitempty,oneof=instagram youtube tiktok"`
}

// PublishNow creates a job scheduled for now and submits its publish trigger
// with zero delay.
func (h *Handler) PublishNow(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req publishNowRequest
	if r.ContentLength != 0 {
		if err := Decode(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPlatform, "unsupported platform", err))
		return
	}

	job, err := h.planner.ScheduleImmediate(r.Context(), accountID, types.Platform(req.Platform))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusCreated, job)
}

// GetJob returns a single job record.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, job)
}

// ListJobs returns jobs filtered by the optional status, account_id, and
// date query parameters. A date constrains results to that calendar day in
// the planning timezone.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := db.JobListFilter{
		AccountID: r.URL.Query().Get("account_id"),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := types.JobStatus(raw)
		if !status.Valid() {
			Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "unknown status "+raw, nil))
			return
		}
		filter.Status = &status
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.ParseInLocation("2006-01-02", raw, h.planningLoc)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err))
			return
		}
		filter.From = types.StartOfDay(date, h.planningLoc)
		filter.To = types.EndOfDay(date, h.planningLoc)
	}

	jobs, err := h.jobs.List(r.Context(), filter)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, jobs)
}
