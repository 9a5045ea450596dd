package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/review-scraper/internal/models"
)

const (
	AggregateScrapeRun     = "scrape_run"
	EventTypeReviewsScrape = "REVIEWS_SCRAPED"
)

var reviewColumns = []string{
	"id", "run_id", "source", "title", "description",
	"published_at", "reviewer_name", "rating", "source_url",
}

// ReviewsScrapedPayload is the body of a REVIEWS_SCRAPED event.
type ReviewsScrapedPayload struct {
	RunID       string        `json:"run_id"`
	Source      models.Source `json:"source"`
	Target      string        `json:"target"`
	RangeStart  string        `json:"range_start"`
	RangeEnd    string        `json:"range_end"`
	ReviewCount int           `json:"review_count"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// ReviewRepository persists scrape results. Each run is stored together
// with its REVIEWS_SCRAPED outbox event in one transaction.
type ReviewRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewReviewRepository(db *DB, outbox *OutboxRepository, logger *slog.Logger) *ReviewRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewRepository{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "review_repository"),
	}
}

// Save implements scraper.Sink.
func (r *ReviewRepository) Save(ctx context.Context, result *models.ScrapeResult) error {
	runID, err := uuid.Parse(result.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", result.RunID, err)
	}

	event, err := reviewsScrapedEvent(result)
	if err != nil {
		return err
	}

	err = r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scrape_runs (
				id, source, target, range_start, range_end,
				started_at, finished_at, review_count
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, string(result.Source), result.Target, result.Range.Start, result.Range.End,
			result.StartedAt, result.FinishedAt, len(result.Reviews),
		)
		if err != nil {
			return fmt.Errorf("failed to insert scrape run: %w", err)
		}

		if len(result.Reviews) > 0 {
			_, err = tx.CopyFrom(ctx, pgx.Identifier{"reviews"}, reviewColumns,
				pgx.CopyFromRows(reviewRows(runID, result.Reviews)))
			if err != nil {
				return fmt.Errorf("failed to insert reviews: %w", err)
			}
		}

		return r.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return err
	}

	r.logger.Info("stored reviews", "run_id", result.RunID, "count", len(result.Reviews))
	return nil
}

func reviewRows(runID uuid.UUID, reviews []models.Review) [][]any {
	rows := make([][]any, 0, len(reviews))
	for _, rv := range reviews {
		rows = append(rows, []any{
			uuid.New(), runID, string(rv.Source), rv.Title, rv.Description,
			rv.PublishedAt, nullable(rv.ReviewerName), rv.Rating, nullable(rv.SourceURL),
		})
	}
	return rows
}

func reviewsScrapedEvent(result *models.ScrapeResult) (*OutboxEvent, error) {
	payload, err := json.Marshal(ReviewsScrapedPayload{
		RunID:       result.RunID,
		Source:      result.Source,
		Target:      result.Target,
		RangeStart:  result.Range.Start.Format(models.DateLayout),
		RangeEnd:    result.Range.End.Format(models.DateLayout),
		ReviewCount: len(result.Reviews),
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateScrapeRun,
		AggregateID:   result.RunID,
		EventType:     EventTypeReviewsScrape,
		Payload:       payload,
	}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
