package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateKind classifies date text before it is parsed.
type DateKind int

const (
	DateEmpty DateKind = iota
	DateRelative
	DateAbsolute
)

func (k DateKind) String() string {
	switch k {
	case DateRelative:
		return "relative"
	case DateAbsolute:
		return "absolute"
	}
	return "empty"
}

var firstIntRegex = regexp.MustCompile(`\d+`)

// DateParser turns the date text shown on review sites into timestamps.
// Relative phrases ("3 days ago") are resolved against the injected clock.
type DateParser struct {
	now func() time.Time
	loc *time.Location
}

func NewDateParser(now func() time.Time, loc *time.Location) *DateParser {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &DateParser{now: now, loc: loc}
}

// Parse returns false for empty, malformed or unrecognized text.
func (p *DateParser) Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	switch ClassifyDate(text) {
	case DateEmpty:
		return time.Time{}, false
	case DateRelative:
		if t, ok := ParseRelative(text, p.now()); ok {
			return t, true
		}
	}
	return ParseAbsolute(text, p.loc)
}

func ClassifyDate(text string) DateKind {
	text = strings.TrimSpace(text)
	if text == "" {
		return DateEmpty
	}
	if strings.Contains(strings.ToLower(text), "ago") {
		return DateRelative
	}
	return DateAbsolute
}

// ParseRelative resolves "N <unit> ago" against now. Months are 30 days and
// years 365 days; hours and minutes resolve to now. A missing count means 1,
// a count that does not fit an int is rejected.
func ParseRelative(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "ago") {
		return time.Time{}, false
	}

	n, ok := firstInt(lower, 1)
	if !ok {
		return time.Time{}, false
	}
	switch {
	case strings.Contains(lower, "day"):
		return now.AddDate(0, 0, -n), true
	case strings.Contains(lower, "month"):
		return now.AddDate(0, 0, -30*n), true
	case strings.Contains(lower, "year"):
		return now.AddDate(0, 0, -365*n), true
	case strings.Contains(lower, "hour"), strings.Contains(lower, "minute"):
		return now, true
	}
	return time.Time{}, false
}

// ParseAbsolute accepts the human-readable formats dateparse understands
// ("January 1, 2024", "Nov 23, 2023", ISO 8601, ...).
func ParseAbsolute(text string, loc *time.Location) (t time.Time, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	defer func() {
		if r := recover(); r != nil {
			t, ok = time.Time{}, false
		}
	}()

	parsed, err := dateparse.ParseIn(text, loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// firstInt returns def when text holds no digits and false when the digits
// do not parse.
func firstInt(text string, def int) (int, bool) {
	m := firstIntRegex.FindString(text)
	if m == "" {
		return def, true
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
