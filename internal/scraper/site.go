package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/maltedev/review-scraper/internal/models"
)

// ResolveMode is how a site gets from a search hit to its reviews listing.
type ResolveMode int

const (
	// ResolveHref reads the hit's href and navigates to its reviews URL.
	ResolveHref ResolveMode = iota
	// ResolveClick clicks the hit and appends the reviews segment to the
	// landing URL when the site did not already land on the reviews tab.
	ResolveClick
)

// Locator reads one value from inside a review element.
type Locator struct {
	Selector    string
	Attr        string // read this attribute instead of the inner text
	VisibleOnly bool
}

// Field is tried in order; the first non-empty value wins.
type Field []Locator

// Site is the per-site locator table the shared driver runs on.
type Site struct {
	Source         models.Source
	BaseURL        string
	SearchURL      string // %s receives the query-escaped target
	ProductLinks   []string
	Resolve        ResolveMode
	ReviewsSegment string
	ReviewItems    []string // first selector with matches wins
	Date           Field
	DatePrefixes   []string
	Title          Field
	Description    Field
	Reviewer       Field
	Rating         Field
	LoadMore       string
	NextPage       string
	BlockMarkers   []string
}

func (s Site) searchURL(target string) string {
	return fmt.Sprintf(s.SearchURL, url.QueryEscape(target))
}

// absolute resolves href against the site's base URL.
func (s Site) absolute(href string) string {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// reviewsURL appends the reviews segment unless u already points at reviews.
func (s Site) reviewsURL(u string) string {
	if strings.Contains(u, "/reviews") {
		return u
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/") + s.ReviewsSegment
}

func (s Site) stripDatePrefixes(text string) string {
	for _, prefix := range s.DatePrefixes {
		text = strings.Replace(text, prefix, "", 1)
	}
	return strings.TrimSpace(text)
}

func (s Site) blocked(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range s.BlockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
