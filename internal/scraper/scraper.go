package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/parser"
	"github.com/maltedev/review-scraper/internal/ratelimit"
)

var ErrProductNotFound = errors.New("product not found")

// Stop reasons, also used as metric labels.
const (
	StopNotFound      = "not_found"
	StopNavigation    = "navigation_failed"
	StopOlderThanFrom = "older_than_start"
	StopBlocked       = "blocked"
	StopExhausted     = "exhausted"
	StopNoMorePages   = "no_more_pages"
	StopMaxPages      = "max_pages"
	StopCanceled      = "canceled"
)

type Options struct {
	Delay    ratelimit.RateLimiter
	Dates    *parser.DateParser
	MaxPages int // 0 means unlimited
	Logger   *slog.Logger
}

// Scraper drives one site through search, product selection and the
// paginated listing. Listings are assumed newest first: the first review
// older than the range start ends the whole scrape.
type Scraper struct {
	site     Site
	delay    ratelimit.RateLimiter
	dates    *parser.DateParser
	maxPages int
	logger   *slog.Logger
}

func New(site Site, opts Options) *Scraper {
	if opts.Delay == nil {
		opts.Delay = ratelimit.None()
	}
	if opts.Dates == nil {
		opts.Dates = parser.NewDateParser(nil, nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scraper{
		site:     site,
		delay:    opts.Delay,
		dates:    opts.Dates,
		maxPages: opts.MaxPages,
		logger:   opts.Logger.With("component", "scraper", "source", string(site.Source)),
	}
}

// Scrape never fails: navigation problems and blocked pages yield the
// reviews collected so far, which may be none.
func (s *Scraper) Scrape(ctx context.Context, p page.Page, target string, rng models.DateRange) []models.Review {
	reviews, reason := s.run(ctx, p, target, rng)
	metrics.ObserveStop(string(s.site.Source), reason)
	s.logger.Info("scrape finished", "target", target, "reviews", len(reviews), "reason", reason)
	return reviews
}

type verdict int

const (
	itemKept verdict = iota
	itemSkipped
	itemTooNew
	itemOlder
)

func (s *Scraper) run(ctx context.Context, p page.Page, target string, rng models.DateRange) ([]models.Review, string) {
	reviews := []models.Review{}

	if err := s.openListing(ctx, p, target); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.logger.Info("product not found", "target", target)
			return reviews, StopNotFound
		}
		if ctx.Err() != nil {
			return reviews, StopCanceled
		}
		s.logger.Error("failed to reach reviews listing", "target", target, "error", err)
		return reviews, StopNavigation
	}

	// cursor is the first element not yet scanned on the current listing;
	// load-more appends to the listing, a next page starts a new one.
	cursor := 0
	for pages := 1; ; pages++ {
		if ctx.Err() != nil {
			return reviews, StopCanceled
		}

		items, count := s.reviewItems(p)
		s.logger.Info("found reviews on page", "total", count, "new", max(count-cursor, 0), "page", pages)
		if count <= cursor {
			if content, err := p.Content(); err == nil && s.site.blocked(content) {
				s.logger.Warn("listing blocked by anti-bot challenge", "url", p.URL())
				return reviews, StopBlocked
			}
			return reviews, StopExhausted
		}
		metrics.ObservePage(string(s.site.Source))

		listingURL := p.URL()
		for i := cursor; i < count; i++ {
			review, v := s.extractItem(items.Nth(i), listingURL, rng)
			switch v {
			case itemOlder:
				s.logger.Info("reached review older than start date, stopping",
					"published_at", review.PublishedAt, "start", rng.Start)
				return reviews, StopOlderThanFrom
			case itemKept:
				metrics.ObserveReview(string(s.site.Source))
				reviews = append(reviews, review)
			case itemTooNew:
				metrics.ObserveSkip(string(s.site.Source), "too_new")
			}
		}

		if s.maxPages > 0 && pages >= s.maxPages {
			return reviews, StopMaxPages
		}

		advanced, appended := s.advance(p)
		if !advanced {
			return reviews, StopNoMorePages
		}
		if err := s.delay.Wait(ctx); err != nil {
			return reviews, StopCanceled
		}
		if appended {
			cursor = count
		} else {
			cursor = 0
		}
	}
}

// openListing runs the search and product-selection phases.
func (s *Scraper) openListing(ctx context.Context, p page.Page, target string) error {
	searchURL := s.site.searchURL(target)
	s.logger.Info("searching", "target", target, "url", searchURL)

	if err := p.Navigate(ctx, searchURL); err != nil {
		return fmt.Errorf("failed to open search: %w", err)
	}
	if err := s.delay.Wait(ctx); err != nil {
		return err
	}

	product, ok := s.firstProduct(p)
	if !ok {
		return ErrProductNotFound
	}

	switch s.site.Resolve {
	case ResolveHref:
		href, err := product.Attribute("href")
		if err != nil {
			return fmt.Errorf("failed to read product link: %w", err)
		}
		if href == "" {
			return errors.New("product link has no href")
		}
		reviewsURL := s.site.reviewsURL(s.site.absolute(href))
		s.logger.Info("navigating to reviews", "url", reviewsURL)
		if err := p.Navigate(ctx, reviewsURL); err != nil {
			return fmt.Errorf("failed to open reviews: %w", err)
		}
	case ResolveClick:
		if name, err := product.InnerText(); err == nil {
			s.logger.Info("found product", "name", parser.CleanText(name))
		}
		if err := product.Click(); err != nil {
			return fmt.Errorf("failed to open product: %w", err)
		}
		if err := p.WaitForLoad(); err != nil {
			return fmt.Errorf("product page did not load: %w", err)
		}
		if !strings.Contains(p.URL(), "/reviews") {
			if err := s.delay.Wait(ctx); err != nil {
				return err
			}
			reviewsURL := s.site.reviewsURL(p.URL())
			s.logger.Info("navigating to reviews", "url", reviewsURL)
			if err := p.Navigate(ctx, reviewsURL); err != nil {
				return fmt.Errorf("failed to open reviews: %w", err)
			}
		}
	}

	return s.delay.Wait(ctx)
}

func (s *Scraper) firstProduct(p page.Page) (page.Element, bool) {
	for _, selector := range s.site.ProductLinks {
		link := p.Locate(selector).First()
		if visible, err := link.IsVisible(); err == nil && visible {
			return link, true
		}
	}
	return nil, false
}

func (s *Scraper) reviewItems(p page.Page) (page.Element, int) {
	var items page.Element
	for _, selector := range s.site.ReviewItems {
		items = p.Locate(selector)
		if count, err := items.Count(); err == nil && count > 0 {
			return items, count
		}
	}
	return items, 0
}

// advance prefers load-more over a next-page control and falls back to the
// latter when the load-more click fails. appended reports whether new
// elements were added to the current listing.
func (s *Scraper) advance(p page.Page) (advanced, appended bool) {
	if s.site.LoadMore != "" {
		button := p.Locate(s.site.LoadMore).First()
		if interactable(button) {
			err := button.Click()
			if err == nil {
				return true, true
			}
			if errors.Is(err, page.ErrNotInteractable) {
				s.logger.Debug("load more is inert, trying next page")
			} else {
				s.logger.Warn("load more click failed", "error", err)
			}
		}
	}

	if s.site.NextPage != "" {
		button := p.Locate(s.site.NextPage).First()
		if interactable(button) {
			if err := button.Click(); err != nil {
				s.logger.Warn("next page click failed", "error", err)
				return false, false
			}
			if err := p.WaitForLoad(); err != nil {
				s.logger.Warn("next page did not finish loading", "error", err)
			}
			return true, false
		}
	}

	return false, false
}

func interactable(el page.Element) bool {
	if count, err := el.Count(); err != nil || count == 0 {
		return false
	}
	if visible, err := el.IsVisible(); err != nil || !visible {
		return false
	}
	enabled, err := el.IsEnabled()
	return err == nil && enabled
}
