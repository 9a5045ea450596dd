package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDate   = errors.New("dates must be in YYYY-MM-DD format")
	ErrInvalidRange  = errors.New("start date must not be after end date")
	ErrUnknownSource = errors.New("unknown review source")
)

const DateLayout = "2006-01-02"

// Source identifies one of the supported review sites.
type Source string

const (
	SourceG2          Source = "g2"
	SourceCapterra    Source = "capterra"
	SourceTrustRadius Source = "trustradius"
)

func Sources() []Source {
	return []Source{SourceG2, SourceCapterra, SourceTrustRadius}
}

func ParseSource(s string) (Source, error) {
	for _, src := range Sources() {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// DisplayName is the human-readable site name.
func (s Source) DisplayName() string {
	switch s {
	case SourceG2:
		return "G2"
	case SourceCapterra:
		return "Capterra"
	case SourceTrustRadius:
		return "TrustRadius"
	}
	return string(s)
}

// Review is one scraped review. PublishedAt always lies inside the
// DateRange the scrape was started with.
type Review struct {
	Source       Source    `json:"source"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	PublishedAt  time.Time `json:"published_at"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	Rating       float64   `json:"rating"`
	SourceURL    string    `json:"source_url,omitempty"`
}

// DateRange is an inclusive window. End is the last instant of its calendar day.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), end.Location())
	if start.After(end) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange validates two YYYY-MM-DD strings in loc.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.Local
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidDate, start)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidDate, end)
	}
	return NewDateRange(s, e)
}

// OlderThanStart reports t strictly before the start bound.
func (r DateRange) OlderThanStart(t time.Time) bool {
	return t.Before(r.Start)
}

// NewerThanEnd reports t strictly after the end bound.
func (r DateRange) NewerThanEnd(t time.Time) bool {
	return t.After(r.End)
}

func (r DateRange) Contains(t time.Time) bool {
	return !r.OlderThanStart(t) && !r.NewerThanEnd(t)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// ScrapeResult is the outcome of one orchestrated scrape.
type ScrapeResult struct {
	RunID      string    `json:"run_id"`
	Source     Source    `json:"source"`
	Target     string    `json:"target"`
	Range      DateRange `json:"range"`
	Reviews    []Review  `json:"reviews"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
