package page

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher returns the HTML body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over plain HTTP. Each instance has its own
// cookie jar, so one fetcher per session keeps sessions isolated.
type HTTPFetcher struct {
	client *resty.Client
}

type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeaders(opts.Headers)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.String(), nil
}

// MapFetcher serves fixed HTML keyed by URL.
type MapFetcher map[string]string

func (m MapFetcher) Fetch(_ context.Context, url string) (string, error) {
	body, ok := m[url]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", url)
	}
	return body, nil
}

// HTMLLauncher opens HTMLPage sessions, asking newFetcher for a fresh
// fetcher per session.
type HTMLLauncher struct {
	newFetcher func() Fetcher
}

func NewHTMLLauncher(newFetcher func() Fetcher) *HTMLLauncher {
	return &HTMLLauncher{newFetcher: newFetcher}
}

func (l *HTMLLauncher) NewSession(_ context.Context) (Session, error) {
	return &htmlSession{fetcher: l.newFetcher()}, nil
}

type htmlSession struct {
	fetcher Fetcher
}

func (s *htmlSession) NewPage() (Page, error) {
	return NewHTMLPage(s.fetcher), nil
}

func (s *htmlSession) Close() error { return nil }
