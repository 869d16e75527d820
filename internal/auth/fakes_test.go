package auth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/authharness/internal/browser"
)

// fakePage is a scriptable in-memory browser.Page. Behaviour is customised
// per test through the hook fields; everything the authenticator does to the
// page is recorded for assertions.
type fakePage struct {
	mu          sync.Mutex
	id          string
	location    string
	navigations []string
	filled      map[string]string
	fillOrder   []string
	clicked     []string
	cookies     []browser.Cookie
	closed      bool

	navigateErr     error
	locationFn      func() (string, error)
	visibleFn       func(selector string) (bool, error)
	evaluateFn      func(script string, out any) error
	evaluateAsyncFn func(script string, out any) error
	inputValueFn    func(selector string) (string, error)
	textFn          func(selector string) (string, error)
	cookiesFn       func() ([]browser.Cookie, error)
	waitFn          func(trigger func(context.Context) error) (*browser.Response, error)
}

func newFakePage() *fakePage {
	return &fakePage{id: "page-1", filled: make(map[string]string)}
}

// setOut assigns v through an *T output pointer, mirroring how a real page
// unmarshals script results.
func setOut[T any](out any, v T) {
	if p, ok := out.(*T); ok {
		*p = v
	}
}

func (p *fakePage) ID() string { return p.id }

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	p.location = url
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	if p.locationFn != nil {
		return p.locationFn()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if p.visibleFn != nil {
		return p.visibleFn(selector)
	}
	return true, nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[selector] = value
	p.fillOrder = append(p.fillOrder, selector)
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = append(p.clicked, selector)
	return nil
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	if p.textFn != nil {
		return p.textFn(selector)
	}
	return "", nil
}

func (p *fakePage) InputValue(ctx context.Context, selector string) (string, error) {
	if p.inputValueFn != nil {
		return p.inputValueFn(selector)
	}
	return "", nil
}

func (p *fakePage) Evaluate(ctx context.Context, script string, out any) error {
	if p.evaluateFn != nil {
		return p.evaluateFn(script, out)
	}
	setOut(out, false)
	return nil
}

func (p *fakePage) EvaluateAsync(ctx context.Context, script string, out any) error {
	if p.evaluateAsyncFn != nil {
		return p.evaluateAsyncFn(script, out)
	}
	setOut(out, false)
	return nil
}

func (p *fakePage) WaitForResponse(ctx context.Context, match func(url string, status int) bool, timeout time.Duration, trigger func(context.Context) error) (*browser.Response, error) {
	if p.waitFn != nil {
		return p.waitFn(trigger)
	}
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	return nil, browser.ErrResponseTimeout
}

func (p *fakePage) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if p.cookiesFn != nil {
		return p.cookiesFn()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.cookies...), nil
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *fakePage) LocalStorage(ctx context.Context) (string, error) {
	return "{}", nil
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) navigationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.navigations)
}

// Script classifiers keyed on distinctive fragments of the page scripts, so
// hooks can dispatch without duplicating the script text.
func isHiddenInputsScript(script string) bool  { return strings.Contains(script, `input[type="hidden"]`) }
func isSubmitTagScript(script string) bool     { return strings.Contains(script, "data-authharness-submit") }
func isVisibleByTextScript(script string) bool { return strings.Contains(script, "offsetParent") }
