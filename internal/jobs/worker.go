package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/review-scraper/internal/queue"
)

// StartWorker runs queued jobs one at a time until ctx is done or the
// queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to take next job", "error", err)
			continue
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	m.logger.Info("processing job", "id", task.ID, "source", task.Source, "company", task.Target)

	started := time.Now()
	m.update(task.ID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	result, err := m.runner.Run(ctx, task.Source, task.Target, task.Range)
	finished := time.Now()

	if err != nil {
		m.logger.Error("job failed", "id", task.ID, "error", err)
		m.update(task.ID, func(j *Job) {
			j.Status = StatusFailed
			j.CompletedAt = &finished
			j.Error = err.Error()
			if result != nil {
				j.RunID = result.RunID
			}
		})
		return
	}

	m.update(task.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.CompletedAt = &finished
		j.RunID = result.RunID
		j.Reviews = result.Reviews
		j.ReviewCount = len(result.Reviews)
	})

	m.logger.Info("job completed", "id", task.ID, "reviews", len(result.Reviews))
}
