package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
)

var testSite = Site{
	Source:         models.SourceG2,
	BaseURL:        "https://reviews.test",
	SearchURL:      "https://reviews.test/search?q=%s",
	ProductLinks:   []string{"a.product"},
	Resolve:        ResolveHref,
	ReviewsSegment: "/reviews",
	ReviewItems:    []string{".review"},
	Date:           Field{{Selector: ".date"}},
	DatePrefixes:   []string{"Written on"},
	Title:          Field{{Selector: ".title"}},
	Description:    Field{{Selector: ".body"}},
	Reviewer:       Field{{Selector: ".author"}},
	Rating:         Field{{Selector: ".rating", Attr: "content"}},
	LoadMore:       "button.more",
	NextPage:       "a.next",
	BlockMarkers:   []string{"captcha"},
}

// fakeElement is a scripted page.Element. items turns it into a list.
type fakeElement struct {
	count    int
	visible  bool
	enabled  bool
	text     string
	attrs    map[string]string
	textErr  error
	panics   bool
	children map[string]*fakeElement
	items    []*fakeElement
	click    func() error
	locates  int
}

var _ page.Element = (*fakeElement)(nil)

func present(text string) *fakeElement {
	return &fakeElement{count: 1, visible: true, enabled: true, text: text}
}

func (e *fakeElement) Count() (int, error) { return e.count, nil }

func (e *fakeElement) Nth(i int) page.Element {
	if i < len(e.items) {
		return e.items[i]
	}
	if e.items != nil {
		return &fakeElement{}
	}
	return e
}

func (e *fakeElement) First() page.Element { return e.Nth(0) }

func (e *fakeElement) Locate(selector string) page.Element {
	e.locates++
	if e.panics {
		panic("detached node")
	}
	if child, ok := e.children[selector]; ok {
		return child
	}
	return &fakeElement{}
}

func (e *fakeElement) IsVisible() (bool, error) { return e.visible, nil }
func (e *fakeElement) IsEnabled() (bool, error) { return e.enabled, nil }

func (e *fakeElement) InnerText() (string, error) {
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.text, nil
}

func (e *fakeElement) Attribute(name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) Click() error {
	if e.click == nil {
		return nil
	}
	return e.click()
}

type reviewSpec struct {
	date, title, body, author, rating string
}

func reviewItem(r reviewSpec) *fakeElement {
	return &fakeElement{
		count:   1,
		visible: true,
		children: map[string]*fakeElement{
			".date":   present(r.date),
			".title":  present(r.title),
			".body":   present(r.body),
			".author": present(r.author),
			".rating": {count: 1, visible: true, attrs: map[string]string{"content": r.rating}},
		},
	}
}

func itemsWithDates(dates ...string) []*fakeElement {
	items := make([]*fakeElement, len(dates))
	for i, d := range dates {
		items[i] = reviewItem(reviewSpec{
			date:   d,
			title:  fmt.Sprintf("Review %d", i+1),
			body:   fmt.Sprintf("Body of review %d", i+1),
			author: fmt.Sprintf("Reviewer %d", i+1),
			rating: "4.5",
		})
	}
	return items
}

// fakePage serves a search page with one product link and a listing made of
// one or more pages. batch > 0 reveals each page batch items at a time
// through the load-more button.
type fakePage struct {
	url         string
	navigations []string
	navErr      error
	noProduct   bool
	emptyHref   bool
	listings    [][]*fakeElement
	current     int
	batch       int
	shown       int
	content     string
	closed      bool
}

var _ page.Page = (*fakePage)(nil)

func newFakePage(listings ...[]*fakeElement) *fakePage {
	return &fakePage{listings: listings}
}

func (p *fakePage) withBatch(n int) *fakePage {
	p.batch = n
	p.shown = n
	return p
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.navigations = append(p.navigations, url)
	if p.navErr != nil {
		return p.navErr
	}
	p.url = url
	return nil
}

func (p *fakePage) visibleItems() []*fakeElement {
	if len(p.listings) == 0 {
		return nil
	}
	items := p.listings[p.current]
	if p.batch > 0 && p.shown < len(items) {
		return items[:p.shown]
	}
	return items
}

func (p *fakePage) Locate(selector string) page.Element {
	switch selector {
	case "a.product":
		if p.noProduct {
			return &fakeElement{}
		}
		href := "/products/acme"
		if p.emptyHref {
			href = ""
		}
		link := present("Acme CRM")
		link.attrs = map[string]string{"href": href}
		return link
	case ".review":
		items := p.visibleItems()
		return &fakeElement{count: len(items), items: items}
	case "button.more":
		if p.batch == 0 || len(p.listings) == 0 || p.shown >= len(p.listings[p.current]) {
			return &fakeElement{}
		}
		more := present("Show more reviews")
		more.click = func() error {
			p.shown += p.batch
			return nil
		}
		return more
	case "a.next":
		if p.current+1 >= len(p.listings) {
			return &fakeElement{}
		}
		next := present("Next")
		next.click = func() error {
			p.current++
			p.shown = p.batch
			p.url = fmt.Sprintf("https://reviews.test/products/acme/reviews?page=%d", p.current+1)
			return nil
		}
		return next
	}
	return &fakeElement{}
}

func (p *fakePage) URL() string              { return p.url }
func (p *fakePage) Content() (string, error) { return p.content, nil }
func (p *fakePage) WaitForLoad() error       { return nil }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeSession struct {
	page    *fakePage
	pageErr error
	closed  bool
}

func (s *fakeSession) NewPage() (page.Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) NewSession(context.Context) (page.Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

var errBrowserGone = errors.New("browser has been closed")
