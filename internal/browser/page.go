// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrResponseTimeout is returned by WaitForResponse when no matching
// response arrives within the allotted time.
var ErrResponseTimeout = errors.New("browser: timed out waiting for matching response")

// Cookie is the backend-agnostic cookie shape persisted in session records.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds; <= 0 means session cookie
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Expired reports whether the cookie carries an expiry in the past.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && time.Unix(int64(c.Expires), 0).Before(now)
}

// Response is a network response observed by WaitForResponse.
type Response struct {
	URL    string
	Status int
	Body   string
}

// OK reports whether the response status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Page is the capability interface over a single, isolated browsing context.
// Authentication logic is written against this interface; implementations
// differ by automation backend.
type Page interface {
	// ID returns the unique identifier for this page's context.
	ID() string

	// Navigate loads a URL, waits for the document to be ready, and then
	// for network activity to settle.
	Navigate(ctx context.Context, url string) error

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	// IsVisible waits up to timeout for an element matching the selector
	// to become visible. A timeout yields (false, nil); hard backend
	// failures yield an error.
	IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// Fill clears the matched input, types the literal value, and raises
	// a blur on the element.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the first visible element matching the selector.
	Click(ctx context.Context, selector string) error

	// Text returns the visible text content of the matched element.
	Text(ctx context.Context, selector string) (string, error)

	// InputValue returns the current value of the matched input element.
	InputValue(ctx context.Context, selector string) (string, error)

	// Evaluate runs a script in the page and unmarshals its result into
	// out. A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error

	// EvaluateAsync runs a promise-returning script and awaits it.
	EvaluateAsync(ctx context.Context, script string, out any) error

	// WaitForResponse invokes trigger and concurrently waits up to
	// timeout for a network response satisfying match. Returns
	// ErrResponseTimeout on expiry.
	WaitForResponse(ctx context.Context, match func(url string, status int) bool, timeout time.Duration, trigger func(context.Context) error) (*Response, error)

	// Cookies returns all cookies of the browsing context, including
	// HttpOnly ones.
	Cookies(ctx context.Context) ([]Cookie, error)

	// SetCookies installs the given cookies into the browsing context.
	SetCookies(ctx context.Context, cookies []Cookie) error

	// LocalStorage returns the page's localStorage serialized as a JSON
	// string.
	LocalStorage(ctx context.Context) (string, error)

	// Close terminates the browsing context and releases its resources.
	Close(ctx context.Context) error
}
