package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/jobs"
	"github.com/maltedev/review-scraper/internal/models"
)

// OutboxStats reports outbox backlog for /health. Nil when no database is configured.
type OutboxStats interface {
	Stats(ctx context.Context) (database.OutboxStats, error)
}

type Handlers struct {
	jobs   *jobs.Manager
	outbox OutboxStats
	logger *slog.Logger
}

func NewHandlers(jobs *jobs.Manager, outbox OutboxStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:   jobs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

// MaxPriority bounds CreateJobRequest.Priority. Higher runs first.
const MaxPriority = 10

type CreateJobRequest struct {
	Company   string `json:"company"`
	Source    string `json:"source"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Priority  int    `json:"priority,omitempty"`
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

type SourceInfo struct {
	ID   models.Source `json:"id"`
	Name string        `json:"name"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	company := strings.TrimSpace(req.Company)
	if company == "" {
		h.respondError(w, http.StatusBadRequest, "company is required")
		return
	}

	source, err := models.ParseSource(strings.ToLower(strings.TrimSpace(req.Source)))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rng, err := models.ParseDateRange(req.StartDate, req.EndDate, time.Local)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Priority < 0 || req.Priority > MaxPriority {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("priority must be between 0 and %d", MaxPriority))
		return
	}

	job, err := h.jobs.CreateJob(source, company, rng, req.Priority)
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.GetStats())
}

func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := make([]SourceInfo, 0, len(models.Sources()))
	for _, s := range models.Sources() {
		sources = append(sources, SourceInfo{ID: s, Name: s.DisplayName()})
	}
	h.respondJSON(w, http.StatusOK, sources)
}

// Health reports ok unless the outbox dead letter backlog is large.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox stats", "error", err)
			health["status"] = "error"
			health["message"] = "database unavailable"
			status = http.StatusServiceUnavailable
		} else {
			health["outbox"] = stats
			if stats.Pending > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if stats.DeadLetter > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
