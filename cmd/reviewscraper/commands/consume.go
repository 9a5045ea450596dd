package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/review-scraper/internal/database"
)

var (
	consumeGroup string
	consumeName  string
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Follow REVIEWS_SCRAPED events on the Redis stream and log each run.",
	RunE:  runConsume,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeGroup, "group", "review-consumers", "Consumer group name")
	consumeCmd.Flags().StringVar(&consumeName, "name", "consumer-1", "Consumer name within the group")
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	consumer := database.NewConsumer(client, log, database.ConsumerConfig{
		Stream: cfg.Redis.Stream,
		Group:  consumeGroup,
		Name:   consumeName,
		Handlers: map[string]database.StreamHandler{
			database.EventTypeReviewsScrape: logReviewsScraped(log),
		},
	})

	err = consumer.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logReviewsScraped(log *slog.Logger) database.StreamHandler {
	return func(_ context.Context, event database.StreamEvent) error {
		var p database.ReviewsScrapedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
		}
		log.Info("reviews scraped",
			"run_id", p.RunID,
			"source", p.Source,
			"target", p.Target,
			"range", p.RangeStart+".."+p.RangeEnd,
			"reviews", p.ReviewCount)
		return nil
	}
}
