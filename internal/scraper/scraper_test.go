package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/parser"
	"github.com/maltedev/review-scraper/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestScraper(site Site, maxPages int) *Scraper {
	return New(site, Options{
		Dates:    parser.NewDateParser(func() time.Time { return fixedNow }, time.UTC),
		MaxPages: maxPages,
		Logger:   logger.Discard(),
	})
}

func mustRange(t *testing.T, start, end string) models.DateRange {
	t.Helper()
	rng, err := models.ParseDateRange(start, end, time.UTC)
	require.NoError(t, err)
	return rng
}

func dates(reviews []models.Review) []string {
	out := make([]string, len(reviews))
	for i, r := range reviews {
		out[i] = r.PublishedAt.Format(models.DateLayout)
	}
	return out
}

func TestScrapeStopsAtFirstReviewOlderThanStart(t *testing.T) {
	items := itemsWithDates("2024-03-01", "2024-02-15", "2024-01-01", "2023-12-01")
	p := newFakePage(items)
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-02-01", "2024-03-31"))

	assert.Equal(t, StopOlderThanFrom, reason)
	assert.Equal(t, []string{"2024-03-01", "2024-02-15"}, dates(reviews))
	assert.Zero(t, items[3].locates, "elements after the stop point must not be read")
}

func TestScrapeStopsBeforeKeepingAnything(t *testing.T) {
	items := itemsWithDates("2024-03-01", "2024-02-15", "2024-01-01")
	p := newFakePage(items)
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-02-01", "2024-02-29"))

	assert.Equal(t, StopOlderThanFrom, reason)
	assert.Equal(t, []string{"2024-02-15"}, dates(reviews))
}

func TestScrapeRangeFiltering(t *testing.T) {
	p := newFakePage(itemsWithDates("2024-02-20", "2024-02-10", "2024-01-05"))
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopNoMorePages, reason)
	assert.Equal(t, []string{"2024-02-10", "2024-01-05"}, dates(reviews))
}

func TestScrapeRangeBoundsAreInclusive(t *testing.T) {
	p := newFakePage(itemsWithDates(
		"2024-02-16",
		"2024-02-15T23:59:59Z",
		"2024-02-15",
		"2024-01-01",
		"2023-12-31T23:59:59Z",
	))
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopOlderThanFrom, reason)
	require.Len(t, reviews, 3)
	assert.Equal(t, []string{"2024-02-15", "2024-02-15", "2024-01-01"}, dates(reviews))
}

func TestScrapeFieldFailureDefaultsThatFieldOnly(t *testing.T) {
	items := itemsWithDates("2024-02-14", "2024-02-13", "2024-02-12", "2024-02-11", "2024-02-10")
	items[2].children[".title"].textErr = errors.New("element is not attached to the DOM")
	p := newFakePage(items)
	s := newTestScraper(testSite, 0)

	reviews, _ := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	require.Len(t, reviews, 5)
	empty := 0
	for _, r := range reviews {
		if r.Title == "" {
			empty++
			assert.Equal(t, "Body of review 3", r.Description)
			continue
		}
		assert.NotEmpty(t, r.Description)
		assert.NotEmpty(t, r.ReviewerName)
		assert.Equal(t, 4.5, r.Rating)
	}
	assert.Equal(t, 1, empty)
}

func TestScrapeSkipsBrokenAndUndatedElements(t *testing.T) {
	items := itemsWithDates("2024-02-14", "2024-02-13", "date unavailable", "2024-02-11")
	items[1].panics = true
	p := newFakePage(items)
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopNoMorePages, reason)
	assert.Equal(t, []string{"2024-02-14", "2024-02-11"}, dates(reviews))
}

func TestScrapeIsIdempotent(t *testing.T) {
	rng := mustRange(t, "2024-01-01", "2024-02-15")
	s := newTestScraper(testSite, 0)

	first, _ := s.run(context.Background(), newFakePage(itemsWithDates("2024-02-14", "2024-02-01", "2024-01-20")), "Acme CRM", rng)
	second, _ := s.run(context.Background(), newFakePage(itemsWithDates("2024-02-14", "2024-02-01", "2024-01-20")), "Acme CRM", rng)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestScrapeRecordFields(t *testing.T) {
	item := reviewItem(reviewSpec{
		date:   "Written on February 3, 2024",
		title:  "  Great   tool ",
		body:   "Pros:\n fast\n Cons: none",
		author: "Jane D.",
		rating: "4,0",
	})
	p := newFakePage([]*fakeElement{item})
	s := newTestScraper(testSite, 0)

	reviews, _ := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	require.Len(t, reviews, 1)
	want := models.Review{
		Source:       models.SourceG2,
		Title:        "Great tool",
		Description:  "Pros: fast Cons: none",
		PublishedAt:  time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		ReviewerName: "Jane D.",
		Rating:       4,
		SourceURL:    "https://reviews.test/products/acme/reviews",
	}
	if diff := cmp.Diff(want, reviews[0]); diff != "" {
		t.Errorf("review mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeEmptyOutcomes(t *testing.T) {
	rng := mustRange(t, "2024-01-01", "2024-02-15")

	tests := []struct {
		name   string
		page   *fakePage
		reason string
	}{
		{
			name:   "product not found",
			page:   &fakePage{noProduct: true},
			reason: StopNotFound,
		},
		{
			name:   "no reviews",
			page:   newFakePage([]*fakeElement{}),
			reason: StopExhausted,
		},
		{
			name:   "navigation failure",
			page:   &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			reason: StopNavigation,
		},
		{
			name:   "product link without href",
			page:   &fakePage{emptyHref: true},
			reason: StopNavigation,
		},
		{
			name:   "blocked",
			page:   &fakePage{content: "<h1>Please complete the CAPTCHA</h1>"},
			reason: StopBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScraper(testSite, 0)
			reviews, reason := s.run(context.Background(), tt.page, "Acme CRM", rng)
			assert.Equal(t, tt.reason, reason)
			assert.NotNil(t, reviews)
			assert.Empty(t, reviews)
		})
	}
}

func TestScrapeNeverPanicsOnEmptyOutcome(t *testing.T) {
	s := newTestScraper(testSite, 0)
	assert.NotPanics(t, func() {
		reviews := s.Scrape(context.Background(), &fakePage{noProduct: true}, "Nope", mustRange(t, "2024-01-01", "2024-02-15"))
		assert.Empty(t, reviews)
	})
}

func TestScrapeResolvesReviewsURL(t *testing.T) {
	p := newFakePage(itemsWithDates("2024-02-10"))
	s := newTestScraper(testSite, 0)

	_, _ = s.run(context.Background(), p, "Acme & Co", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, []string{
		"https://reviews.test/search?q=Acme+%26+Co",
		"https://reviews.test/products/acme/reviews",
	}, p.navigations)
}

func TestScrapeLoadMoreScansOnlyNewElements(t *testing.T) {
	items := itemsWithDates("2024-02-14", "2024-02-13", "2024-02-12", "2024-02-11", "2024-02-10")
	p := newFakePage(items).withBatch(2)
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopNoMorePages, reason)
	assert.Equal(t, []string{"2024-02-14", "2024-02-13", "2024-02-12", "2024-02-11", "2024-02-10"}, dates(reviews))
}

func TestScrapeFollowsNextPage(t *testing.T) {
	p := newFakePage(
		itemsWithDates("2024-02-14", "2024-02-13"),
		itemsWithDates("2024-02-05", "2024-01-20"),
		itemsWithDates("2023-12-20"),
	)
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopOlderThanFrom, reason)
	assert.Equal(t, []string{"2024-02-14", "2024-02-13", "2024-02-05", "2024-01-20"}, dates(reviews))
	assert.Equal(t, "https://reviews.test/products/acme/reviews?page=2", reviews[2].SourceURL)
}

func TestScrapeStopsWhenNoMorePages(t *testing.T) {
	p := newFakePage(itemsWithDates("2024-02-14"), itemsWithDates("2024-02-10"))
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopNoMorePages, reason)
	assert.Len(t, reviews, 2)
}

func TestScrapeHonorsMaxPages(t *testing.T) {
	p := newFakePage(itemsWithDates("2024-02-14"), itemsWithDates("2024-02-10"), itemsWithDates("2024-02-05"))
	s := newTestScraper(testSite, 2)

	reviews, reason := s.run(context.Background(), p, "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopMaxPages, reason)
	assert.Len(t, reviews, 2)
}

func TestScrapeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestScraper(testSite, 0)

	reviews, reason := s.run(ctx, newFakePage(itemsWithDates("2024-02-14")), "Acme CRM", mustRange(t, "2024-01-01", "2024-02-15"))

	assert.Equal(t, StopCanceled, reason)
	assert.Empty(t, reviews)
}

func TestSiteHelpers(t *testing.T) {
	site := Site{BaseURL: "https://www.capterra.com", ReviewsSegment: "/reviews/", SearchURL: "https://x.test/?q=%s", BlockMarkers: []string{"captcha"}}

	assert.Equal(t, "https://x.test/?q=big+co", site.searchURL("big co"))
	assert.Equal(t, "https://www.capterra.com/p/123/acme/", site.absolute("/p/123/acme/"))
	assert.Equal(t, "https://www.capterra.com/p/123/acme/reviews/", site.reviewsURL("https://www.capterra.com/p/123/acme/?ref=search"))
	assert.Equal(t, "https://www.capterra.com/p/123/acme/reviews/", site.reviewsURL("https://www.capterra.com/p/123/acme/reviews/"))
	assert.True(t, site.blocked("Solve this CAPTCHA"))
	assert.False(t, site.blocked("Reviews of Acme"))

	site.DatePrefixes = []string{"Written on"}
	assert.Equal(t, "March 3, 2024", site.stripDatePrefixes(" Written on March 3, 2024 "))
}

func TestSiteFor(t *testing.T) {
	for _, source := range models.Sources() {
		site, err := SiteFor(source)
		require.NoError(t, err)
		assert.Equal(t, source, site.Source)
		assert.NotEmpty(t, site.ReviewItems)
		assert.NotEmpty(t, site.NextPage)
	}

	_, err := SiteFor("yelp")
	assert.ErrorIs(t, err, models.ErrUnknownSource)
}
