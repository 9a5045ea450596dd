package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/review-scraper/internal/page"
)

// browserPage adapts a Playwright page to page.Page.
type browserPage struct {
	page       playwright.Page
	maxRetries int
	timeout    time.Duration
	logger     *slog.Logger
}

// Navigate retries failed navigations with a linear backoff.
func (p *browserPage) Navigate(ctx context.Context, url string) error {
	attempts := max(p.maxRetries, 1)
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			p.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := p.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.Warn("navigation failed", "error", err, "attempt", i+1, "url", url)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p *browserPage) Locate(selector string) page.Element {
	return &element{loc: p.page.Locator(selector)}
}

func (p *browserPage) URL() string { return p.page.URL() }

func (p *browserPage) Content() (string, error) { return p.page.Content() }

func (p *browserPage) WaitForLoad() error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	})
}

func (p *browserPage) Close() error { return p.page.Close() }

type element struct {
	loc playwright.Locator
}

func (e *element) Count() (int, error) { return e.loc.Count() }
func (e *element) Nth(i int) page.Element { return &element{loc: e.loc.Nth(i)} }
func (e *element) First() page.Element { return &element{loc: e.loc.First()} }
func (e *element) IsVisible() (bool, error) { return e.loc.IsVisible() }
func (e *element) IsEnabled() (bool, error) { return e.loc.IsEnabled() }
func (e *element) InnerText() (string, error) { return e.loc.InnerText() }
func (e *element) Click() error { return e.loc.Click() }

func (e *element) Locate(selector string) page.Element {
	return &element{loc: e.loc.Locator(selector)}
}

func (e *element) Attribute(name string) (string, error) {
	return e.loc.GetAttribute(name)
}
