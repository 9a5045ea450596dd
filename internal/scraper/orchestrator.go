package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
)

// Sink receives the result of every successful scrape.
type Sink interface {
	Save(ctx context.Context, result *models.ScrapeResult) error
}

// Orchestrator runs one scrape per call, each in a fresh browsing session.
type Orchestrator struct {
	launcher page.Launcher
	opts     Options
	sinks    []Sink
	logger   *slog.Logger
}

func NewOrchestrator(launcher page.Launcher, opts Options, sinks ...Sink) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		launcher: launcher,
		opts:     opts,
		sinks:    sinks,
		logger:   opts.Logger.With("component", "orchestrator"),
	}
}

// Run errors only when the environment fails: unknown source, no browsing
// session, or a sink that cannot store the result. Scrape-level problems
// show up as fewer reviews.
func (o *Orchestrator) Run(ctx context.Context, source models.Source, target string, rng models.DateRange) (*models.ScrapeResult, error) {
	site, err := SiteFor(source)
	if err != nil {
		return nil, err
	}

	session, err := o.launcher.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("failed to close browser session", "error", err)
		}
	}()

	p, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer p.Close()

	result := &models.ScrapeResult{
		RunID:     uuid.NewString(),
		Source:    source,
		Target:    target,
		Range:     rng,
		StartedAt: time.Now(),
	}

	o.logger.Info("starting scrape", "run_id", result.RunID, "source", source, "target", target, "range", rng.String())

	result.Reviews = New(site, o.opts).Scrape(ctx, p, target, rng)
	result.FinishedAt = time.Now()
	metrics.ObserveScrape(string(source), result.FinishedAt.Sub(result.StartedAt))

	for _, sink := range o.sinks {
		if err := sink.Save(ctx, result); err != nil {
			return result, fmt.Errorf("failed to save results: %w", err)
		}
	}

	return result, nil
}
