// Package page defines the rendered page capability scrapers drive, plus a
// goquery-backed implementation for sites that render server-side and for
// fixture replay.
package page

import (
	"context"
	"errors"
)

var (
	ErrNoElement = errors.New("no element matches selector")
	// ErrNotInteractable is returned by Click when the element has nothing
	// the engine can act on.
	ErrNotInteractable = errors.New("element is not interactable")
)

// Page is one tab of a browsing context. Every call may block up to the
// implementation's own timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Locate(selector string) Element
	URL() string
	Content() (string, error)
	WaitForLoad() error
	Close() error
}

// Element is a lazily evaluated set of matches, modelled on Playwright locators.
type Element interface {
	Count() (int, error)
	Nth(i int) Element
	First() Element
	Locate(selector string) Element
	IsVisible() (bool, error)
	IsEnabled() (bool, error)
	InnerText() (string, error)
	Attribute(name string) (string, error)
	Click() error
}

// Session is an isolated browsing context (own cookies and cache).
type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Launcher establishes browsing sessions.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}
