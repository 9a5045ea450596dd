package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/queue"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Runner performs one scrape. *scraper.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, source models.Source, target string, rng models.DateRange) (*models.ScrapeResult, error)
}

// Job is a scrape request submitted through the API.
type Job struct {
	ID          string           `json:"id"`
	Source      models.Source    `json:"source"`
	Company     string           `json:"company"`
	Range       models.DateRange `json:"range"`
	Priority    int              `json:"priority"`
	Status      Status           `json:"status"`
	RunID       string           `json:"run_id,omitempty"`
	ReviewCount int              `json:"review_count"`
	Reviews     []models.Review  `json:"reviews,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Stats counts jobs by status. Queued is the number of tasks still waiting
// in the queue for a worker.
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	Queued        int `json:"queued"`
}

// Manager keeps the job registry in memory and feeds the queue the worker
// drains.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  queue.Queue
	runner Runner
	logger *slog.Logger
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		queue:  q,
		runner: runner,
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob registers a pending job and queues it. Higher priorities are
// picked up first.
func (m *Manager) CreateJob(source models.Source, company string, rng models.DateRange, priority int) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Source:    source,
		Company:   company,
		Range:     rng,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{
		ID:        job.ID,
		Source:    source,
		Target:    company,
		Range:     rng,
		Priority:  priority,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "source", source, "company", company, "priority", priority)
	snapshot := *job
	return &snapshot, nil
}

// GetJob returns a copy of the job.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// ListJobs returns all jobs newest first, without their reviews.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		snapshot.Reviews = nil
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs), Queued: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}
	return stats
}

func (m *Manager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		fn(job)
	}
}
