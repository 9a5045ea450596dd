package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReviewsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "review_scraper", Name: "reviews_scraped_total", Help: "Reviews kept inside the requested range."},
		[]string{"source"},
	)
	PagesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "review_scraper", Name: "pages_scanned_total", Help: "Listing pages or load-more batches scanned."},
		[]string{"source"},
	)
	ItemsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "review_scraper", Name: "items_skipped_total", Help: "Review elements skipped."},
		[]string{"source", "reason"}, // reason: no_date|too_new|error
	)
	ScrapeStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "review_scraper", Name: "scrape_stops_total", Help: "Why scrapes ended."},
		[]string{"source", "reason"},
	)
	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "review_scraper", Name: "scrape_duration_seconds",
			Help:    "Wall time of one orchestrated scrape.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"source"},
	)
	OutboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "review_scraper", Name: "outbox_deliveries_total", Help: "Outbox events handed to the Redis stream."},
		[]string{"event_type", "result"}, // result: published|failed
	)
)

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ReviewsScraped, PagesScanned, ItemsSkipped, ScrapeStops, ScrapeDuration, OutboxDeliveries)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveReview(source string)       { ReviewsScraped.WithLabelValues(source).Inc() }
func ObservePage(source string)         { PagesScanned.WithLabelValues(source).Inc() }
func ObserveSkip(source, reason string) { ItemsSkipped.WithLabelValues(source, reason).Inc() }
func ObserveStop(source, reason string) { ScrapeStops.WithLabelValues(source, reason).Inc() }

func ObserveDelivery(eventType string, err error) {
	result := "published"
	if err != nil {
		result = "failed"
	}
	OutboxDeliveries.WithLabelValues(eventType, result).Inc()
}

func ObserveScrape(source string, dur time.Duration) {
	ScrapeDuration.WithLabelValues(source).Observe(dur.Seconds())
}
