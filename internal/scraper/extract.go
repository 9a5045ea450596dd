package scraper

import (
	"strings"

	"github.com/maltedev/review-scraper/internal/metrics"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/parser"
)

// extractItem applies the date rules to one review element and, when it is
// in range, reads the remaining fields. A failing element is skipped.
func (s *Scraper) extractItem(el page.Element, listingURL string, rng models.DateRange) (review models.Review, v verdict) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("skipping malformed review element", "panic", r)
			metrics.ObserveSkip(string(s.site.Source), "error")
			review, v = models.Review{}, itemSkipped
		}
	}()

	dateText := s.site.stripDatePrefixes(s.readField(el, s.site.Date))
	published, ok := s.dates.Parse(dateText)
	if !ok {
		s.logger.Debug("skipping review without parseable date", "text", dateText)
		metrics.ObserveSkip(string(s.site.Source), "no_date")
		return models.Review{}, itemSkipped
	}

	if rng.OlderThanStart(published) {
		return models.Review{PublishedAt: published}, itemOlder
	}
	if rng.NewerThanEnd(published) {
		return models.Review{PublishedAt: published}, itemTooNew
	}

	return models.Review{
		Source:       s.site.Source,
		Title:        parser.CleanText(s.readField(el, s.site.Title)),
		Description:  parser.CleanText(s.readField(el, s.site.Description)),
		PublishedAt:  published,
		ReviewerName: parser.CleanText(s.readField(el, s.site.Reviewer)),
		Rating:       parser.ParseRating(s.readField(el, s.site.Rating)),
		SourceURL:    listingURL,
	}, itemKept
}

// readField returns the first non-empty value the field's locators yield.
// Any failure reads as "".
func (s *Scraper) readField(el page.Element, field Field) (value string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("field extraction panicked", "panic", r)
			value = ""
		}
	}()

	for _, loc := range field {
		target := el.Locate(loc.Selector).First()
		if count, err := target.Count(); err != nil || count == 0 {
			continue
		}
		if loc.VisibleOnly {
			if visible, err := target.IsVisible(); err != nil || !visible {
				continue
			}
		}

		var (
			text string
			err  error
		)
		if loc.Attr != "" {
			text, err = target.Attribute(loc.Attr)
		} else {
			text, err = target.InnerText()
		}
		if err != nil {
			s.logger.Debug("field extraction failed", "selector", loc.Selector, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}
