package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/review-scraper/internal/api"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/jobs"
	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/queue"
	"github.com/maltedev/review-scraper/internal/scraper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scrape job API.",
	Long: `Run the HTTP API that queues scrape jobs and runs them one at a time.

When DATABASE_URL is set, reviews are also stored in Postgres and an outbox
relay publishes a REVIEWS_SCRAPED event per run to the Redis stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	files, err := fileSink(cfg, log)
	if err != nil {
		return err
	}
	sinks := []scraper.Sink{files}

	var outbox api.OutboxStats
	if cfg.Database.URL != "" {
		be, err := openBackend(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer be.Close()

		sinks = append(sinks, database.NewReviewRepository(be.db, be.outbox, log))
		outbox = be.outbox

		relay := database.NewRelay(be.outbox, be.redis, log, database.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
		})
		relayDone := runRelay(ctx, relay, log)
		defer func() {
			cancel()
			<-relayDone
		}()
	} else {
		log.Info("DATABASE_URL not set, reviews are written to files only", "dir", cfg.Output.Dir)
	}

	l, err := newLauncher(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.close(); err != nil {
			log.Warn("failed to close page engine", "error", err)
		}
	}()

	q := queue.NewInMemoryQueue()
	defer q.Close()

	manager := jobs.NewManager(q, scraper.NewOrchestrator(l, scraperOptions(cfg, log), sinks...), log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		manager.StartWorker(ctx)
	}()

	handlers := api.NewHandlers(manager, outbox, log)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, metrics.Handler(metrics.InitRegistry())),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}

	cancel()
	<-workerDone
	log.Info("server stopped")
	return nil
}

type relayStarter interface {
	Start(ctx context.Context) error
}

// runRelay starts the relay in the background. The returned channel closes
// once the relay has returned, so callers can wait for it before closing the
// database and Redis clients it uses.
func runRelay(ctx context.Context, relay relayStarter, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped with error", "error", err)
		}
	}()
	return done
}
