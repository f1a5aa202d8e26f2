// Package browser is the boundary to the interactive portal logins. Carrier
// renewal drivers script a Session; nothing else in the module touches a browser.
package browser

import (
	"context"
	"errors"
	"time"
)

var ErrTokenNotFound = errors.New("no token found in session")

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// Browser launches isolated automation sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one browser instance. Selectors may be CSS or XPath.
// Close must be called on every exit path and releases the browser process.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error

	// TryClick clicks the element if it shows up within timeout and reports whether it did.
	TryClick(ctx context.Context, selector string, timeout time.Duration) bool

	WaitURLContains(ctx context.Context, fragment string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)

	Cookies(ctx context.Context) ([]Cookie, error)

	// Storage returns session storage merged with local storage, local storage winning.
	Storage(ctx context.Context) (map[string]string, error)

	HTML(ctx context.Context) (string, error)

	// Eval runs a script and decodes its JSON result into out.
	Eval(ctx context.Context, script string, out any) error

	Close() error
}
