package page

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage is a Page over static HTML. It never runs scripts, so it only
// works for markup that is present in the server response.
type HTMLPage struct {
	fetcher Fetcher
	ctx     context.Context
	url     string
	html    string
	doc     *goquery.Document
}

func NewHTMLPage(f Fetcher) *HTMLPage {
	return &HTMLPage{fetcher: f, ctx: context.Background()}
}

func (p *HTMLPage) Navigate(ctx context.Context, rawURL string) error {
	body, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}

	p.ctx = ctx
	p.url = rawURL
	p.html = body
	p.doc = doc
	return nil
}

func (p *HTMLPage) Locate(selector string) Element {
	if p.doc == nil {
		return &htmlElement{page: p, sel: &goquery.Selection{}}
	}
	return &htmlElement{page: p, sel: p.doc.Find(translateSelector(selector))}
}

func (p *HTMLPage) URL() string { return p.url }

func (p *HTMLPage) Content() (string, error) { return p.html, nil }

func (p *HTMLPage) WaitForLoad() error { return nil }

func (p *HTMLPage) Close() error {
	p.doc = nil
	return nil
}

func (p *HTMLPage) follow(href string) error {
	target := href
	if base, err := url.Parse(p.url); err == nil {
		if ref, err := url.Parse(href); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}
	return p.Navigate(p.ctx, target)
}

// translateSelector maps the Playwright pseudo-classes we use onto cascadia.
func translateSelector(selector string) string {
	return strings.ReplaceAll(selector, ":has-text(", ":contains(")
}

type htmlElement struct {
	page *HTMLPage
	sel  *goquery.Selection
}

func (e *htmlElement) Count() (int, error) { return e.sel.Length(), nil }

func (e *htmlElement) Nth(i int) Element {
	return &htmlElement{page: e.page, sel: e.sel.Eq(i)}
}

func (e *htmlElement) First() Element {
	return &htmlElement{page: e.page, sel: e.sel.First()}
}

func (e *htmlElement) Locate(selector string) Element {
	return &htmlElement{page: e.page, sel: e.sel.Find(translateSelector(selector))}
}

func (e *htmlElement) IsVisible() (bool, error) {
	if e.sel.Length() == 0 {
		return false, nil
	}
	node := e.sel.First()
	if hidden(node) {
		return false, nil
	}
	visible := true
	node.Parents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hidden(s) {
			visible = false
		}
		return visible
	})
	return visible, nil
}

func (e *htmlElement) IsEnabled() (bool, error) {
	if e.sel.Length() == 0 {
		return false, ErrNoElement
	}
	node := e.sel.First()
	if _, ok := node.Attr("disabled"); ok {
		return false, nil
	}
	if v, _ := node.Attr("aria-disabled"); v == "true" {
		return false, nil
	}
	class, _ := node.Attr("class")
	return !strings.Contains(class, "disabled"), nil
}

func (e *htmlElement) InnerText() (string, error) {
	if e.sel.Length() == 0 {
		return "", ErrNoElement
	}
	return e.sel.First().Text(), nil
}

func (e *htmlElement) Attribute(name string) (string, error) {
	if e.sel.Length() == 0 {
		return "", ErrNoElement
	}
	v, _ := e.sel.First().Attr(name)
	return v, nil
}

// Click follows href or data-href. Without either there is no script to
// run, so the click fails with ErrNotInteractable.
func (e *htmlElement) Click() error {
	if e.sel.Length() == 0 {
		return ErrNoElement
	}
	node := e.sel.First()
	href, ok := node.Attr("href")
	if !ok || href == "" {
		href, ok = node.Attr("data-href")
	}
	if !ok || href == "" {
		return ErrNotInteractable
	}
	return e.page.follow(href)
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if v, _ := s.Attr("aria-hidden"); v == "true" {
		return true
	}
	style, _ := s.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none")
}
