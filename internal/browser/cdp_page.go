// File: internal/browser/cdp_page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/config"
)

// cdpPage implements Page on top of a dedicated chromedp browser context.
type cdpPage struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	pageCtx    context.Context
	pageCancel context.CancelFunc

	isClosed bool
	mu       sync.Mutex
}

var _ Page = (*cdpPage)(nil)

// newCDPPage spins up the browsing context and enables network events so
// cookies and response waits work from the first navigation.
func newCDPPage(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*cdpPage, error) {
	id := uuid.New().String()

	pageCtx, cancel := chromedp.NewContext(allocCtx)
	p := &cdpPage{
		id:         id,
		cfg:        cfg,
		logger:     logger.With(zap.String("page_id", id[:8])),
		pageCtx:    pageCtx,
		pageCancel: cancel,
	}

	init := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate("about:blank"),
	}
	if cfg.DisableCache {
		init = append(init, network.SetCacheDisabled(true))
	}
	if err := chromedp.Run(pageCtx, init...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browsing context: %w", err)
	}

	p.logger.Debug("Browsing context initialized.")
	return p, nil
}

func (p *cdpPage) ID() string { return p.id }

// run executes chromedp actions against the page, bounded by the caller's
// context.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeDeadline(p.pageCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// mergeDeadline derives a context from base that also honours the deadline
// and cancellation of bound.
func mergeDeadline(base, bound context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := bound.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	ctx, cancel := context.WithCancel(base)
	stop := context.AfterFunc(bound, cancel)
	return ctx, func() { stop(); cancel() }
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Let in-flight fetches settle before callers inspect the page.
		chromedp.Sleep(p.cfg.PostLoadWait),
	)
}

func (p *cdpPage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *cdpPage) IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (p *cdpPage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`(() => { const el = document.querySelector(%q); if (el) el.blur(); })()`, selector), nil),
	)
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *cdpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *cdpPage) InputValue(ctx context.Context, selector string) (string, error) {
	var value string
	if err := p.run(ctx, chromedp.Value(selector, &value, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return value, nil
}

func (p *cdpPage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *cdpPage) EvaluateAsync(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out,
		func(ep *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return ep.WithAwaitPromise(true)
		}))
}

func (p *cdpPage) WaitForResponse(ctx context.Context, match func(url string, status int) bool, timeout time.Duration, trigger func(context.Context) error) (*Response, error) {
	matched := make(chan *network.EventResponseReceived, 1)

	// The listener must be attached before the trigger fires, or a fast
	// response can slip past unobserved.
	listenCtx, stopListening := context.WithCancel(p.pageCtx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			if match(e.Response.URL, int(e.Response.Status)) {
				select {
				case matched <- e:
				default:
				}
			}
		}
	})

	triggerErr := make(chan error, 1)
	go func() {
		if trigger == nil {
			triggerErr <- nil
			return
		}
		triggerErr <- trigger(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case e := <-matched:
			resp := &Response{URL: e.Response.URL, Status: int(e.Response.Status)}
			// Body retrieval is best-effort; it may already be evicted.
			_ = p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
				body, err := network.GetResponseBody(e.RequestID).Do(c)
				if err == nil {
					resp.Body = string(body)
				}
				return nil
			}))
			return resp, nil
		case err := <-triggerErr:
			if err != nil {
				return nil, fmt.Errorf("trigger failed while awaiting response: %w", err)
			}
			triggerErr = nil // keep waiting for the response
		case <-timer.C:
			return nil, ErrResponseTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *cdpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

func (p *cdpPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, param)
	}
	return p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return network.SetCookies(params).Do(c)
	}))
}

func (p *cdpPage) LocalStorage(ctx context.Context) (string, error) {
	var snapshot string
	if err := p.run(ctx, chromedp.Evaluate(`JSON.stringify(window.localStorage)`, &snapshot)); err != nil {
		return "", err
	}
	return snapshot, nil
}

// Close safely terminates the browsing context.
func (p *cdpPage) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return nil
	}
	p.isClosed = true
	p.mu.Unlock()

	p.pageCancel()

	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()

	select {
	case <-p.pageCtx.Done():
		p.logger.Debug("Browsing context closed gracefully.")
	case <-waitCtx.Done():
		p.logger.Warn("Deadline exceeded waiting for browsing context to close.", zap.Error(waitCtx.Err()))
	}
	return nil
}
