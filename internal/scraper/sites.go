package scraper

import (
	"fmt"

	"github.com/maltedev/review-scraper/internal/models"
)

// schema.org microdata most listings embed next to the visible stars.
var schemaRating = Locator{Selector: `meta[itemprop="ratingValue"]`, Attr: "content"}

var blockMarkers = []string{"captcha", "access denied", "are you a robot"}

var g2 = Site{
	Source:    models.SourceG2,
	BaseURL:   "https://www.g2.com",
	SearchURL: "https://www.g2.com/search?query=%s",
	ProductLinks: []string{
		".product-listing__product-name",
		"a.js-log-click",
	},
	Resolve:        ResolveClick,
	ReviewsSegment: "/reviews",
	ReviewItems:    []string{`div[itemprop="review"]`},
	Date: Field{
		{Selector: ".time-ago", VisibleOnly: true},
		{Selector: `meta[itemprop="datePublished"]`, Attr: "content"},
	},
	Title:        Field{{Selector: `[itemprop="headline"]`}},
	Description:  Field{{Selector: `[itemprop="reviewBody"]`}},
	Reviewer:     Field{{Selector: `[itemprop="author"]`}},
	Rating:       Field{schemaRating},
	NextPage:     `a.pagination__named-link:has-text("Next")`,
	BlockMarkers: blockMarkers,
}

var capterra = Site{
	Source:         models.SourceCapterra,
	BaseURL:        "https://www.capterra.com",
	SearchURL:      "https://www.capterra.com/search?search=%s",
	ProductLinks:   []string{".nb-product-card a"},
	Resolve:        ResolveHref,
	ReviewsSegment: "/reviews/",
	ReviewItems:    []string{".review-card"},
	Date:           Field{{Selector: ".review-card__written-on"}},
	DatePrefixes:   []string{"Written on"},
	Title:          Field{{Selector: ".review-card__title"}},
	Description:    Field{{Selector: ".review-card__pros-cons"}},
	Reviewer:       Field{{Selector: ".review-card__reviewer-name"}},
	Rating:         Field{schemaRating},
	LoadMore:       `button:has-text('Show more reviews')`,
	NextPage:       `button[aria-label='Next Page']`,
	BlockMarkers:   blockMarkers,
}

var trustRadius = Site{
	Source:         models.SourceTrustRadius,
	BaseURL:        "https://www.trustradius.com",
	SearchURL:      "https://www.trustradius.com/search?q=%s",
	ProductLinks:   []string{".search-result-heading a"},
	Resolve:        ResolveClick,
	ReviewsSegment: "/reviews",
	// the React build drops the card class on some layouts
	ReviewItems:  []string{".review-card", "article"},
	Date:         Field{{Selector: ".review-date", VisibleOnly: true}},
	Title:        Field{{Selector: "h3"}},
	Description:  Field{{Selector: ".review-content"}},
	Reviewer:     Field{{Selector: ".reviewer-name"}},
	Rating:       Field{schemaRating},
	NextPage:     "a.next",
	BlockMarkers: blockMarkers,
}

var sites = map[models.Source]Site{
	models.SourceG2:          g2,
	models.SourceCapterra:    capterra,
	models.SourceTrustRadius: trustRadius,
}

// SiteFor returns the locator table for source.
func SiteFor(source models.Source) (Site, error) {
	site, ok := sites[source]
	if !ok {
		return Site{}, fmt.Errorf("%w: %q", models.ErrUnknownSource, source)
	}
	return site, nil
}
