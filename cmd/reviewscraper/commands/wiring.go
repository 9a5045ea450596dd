package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/review-scraper/internal/browser"
	"github.com/maltedev/review-scraper/internal/config"
	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/parser"
	"github.com/maltedev/review-scraper/internal/ratelimit"
	"github.com/maltedev/review-scraper/internal/scraper"
	"github.com/maltedev/review-scraper/internal/storage"
)

// launcher pairs a page.Launcher with the function that releases it.
type launcher struct {
	page.Launcher
	close func() error
}

func newLauncher(cfg *config.Config, log *slog.Logger) (*launcher, error) {
	switch cfg.Browser.Engine {
	case config.EngineHTTP:
		opts := page.HTTPOptions{
			Timeout:   cfg.Browser.Timeout,
			UserAgent: cfg.Browser.UserAgent,
			Headers:   map[string]string{"Accept-Language": cfg.Browser.AcceptLanguage},
		}
		l := page.NewHTMLLauncher(func() page.Fetcher { return page.NewHTTPFetcher(opts) })
		return &launcher{Launcher: l, close: func() error { return nil }}, nil

	case config.EngineChromium:
		b, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			MaxRetries:     cfg.Scraper.MaxRetries,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
			ProxyServer:    cfg.Browser.ProxyServer,
			Logger:         log,
		})
		if err != nil {
			return nil, err
		}
		return &launcher{Launcher: b, close: b.Close}, nil
	}

	return nil, fmt.Errorf("unknown browser engine %q", cfg.Browser.Engine)
}

func scraperOptions(cfg *config.Config, log *slog.Logger) scraper.Options {
	return scraper.Options{
		Delay:    ratelimit.NewRandomDelay(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay),
		Dates:    parser.NewDateParser(nil, nil),
		MaxPages: cfg.Scraper.MaxPages,
		Logger:   log,
	}
}

// backend holds the optional Postgres and Redis connections.
type backend struct {
	db     *database.DB
	outbox *database.OutboxRepository
	redis  *redis.Client
}

func (b *backend) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.db != nil {
		b.db.Close()
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config, withRedis bool) (*backend, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required for storing reviews")
	}

	db, err := database.New(ctx, database.Config{URL: cfg.Database.URL, MaxConns: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	b := &backend{db: db, outbox: database.NewOutboxRepository(db, cfg.Redis.Stream)}
	if !withRedis {
		return b, nil
	}

	b.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := b.redis.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return b, nil
}

func fileSink(cfg *config.Config, log *slog.Logger) (*storage.FileStorage, error) {
	return storage.NewFileStorage(cfg.Output.Dir, log)
}
