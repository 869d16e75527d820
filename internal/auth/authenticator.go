// File: internal/auth/authenticator.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/browser"
	"github.com/xkilldash9x/authharness/internal/config"
)

// submitMarker is a temporary attribute stamped onto the chosen submit
// control so it can be clicked through a stable selector, regardless of how
// the control was located.
const submitMarker = "data-authharness-submit"

// tagLabelledControlScript locates the first visible control whose label
// matches the pattern and stamps the submit marker onto it.
const tagLabelledControlScript = `
(() => {
    document.querySelectorAll('[` + submitMarker + `]').forEach(el => el.removeAttribute('` + submitMarker + `'));
    const re = new RegExp(%q, 'i');
    const el = Array.from(document.querySelectorAll('button, input[type="submit"], [role="button"]'))
        .find(el => re.test(((el.textContent || el.value) || '').trim()) && el.offsetParent !== null);
    if (!el) return false;
    el.setAttribute('` + submitMarker + `', '1');
    return true;
})()
`

// tagGenericSubmitScript stamps the marker onto any generic submit control.
const tagGenericSubmitScript = `
(() => {
    document.querySelectorAll('[` + submitMarker + `]').forEach(el => el.removeAttribute('` + submitMarker + `'));
    const el = document.querySelector('button[type="submit"], input[type="submit"]');
    if (!el) return false;
    el.setAttribute('` + submitMarker + `', '1');
    return true;
})()
`

const (
	emailSelector    = `input[name="email"]`
	passwordSelector = `input[name="password"]`
	csrfSelector     = `input[name="csrfToken"]`
)

// UIAuthenticator orchestrates the full login state machine for one
// browsing context:
//
//	Start -> TryRestore -> {Validated -> Done, Invalid -> FreshLogin}
//	      -> FillForm -> Submit -> AwaitResponse
//	      -> {Success -> SaveSession -> Done, AuthError/Timeout -> Failed}
//
// Restore-path problems are recovered locally and never surface as
// failures; fresh-login failures always propagate.
type UIAuthenticator struct {
	cfg       config.HarnessConfig
	verifier  *CredentialVerifier
	store     *SessionStore
	filler    *FormFiller
	validator *SessionValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewUIAuthenticator wires the orchestrator from its collaborators.
func NewUIAuthenticator(
	cfg config.HarnessConfig,
	verifier *CredentialVerifier,
	store *SessionStore,
	filler *FormFiller,
	validator *SessionValidator,
	logger *zap.Logger,
) *UIAuthenticator {
	return &UIAuthenticator{
		cfg:       cfg,
		verifier:  verifier,
		store:     store,
		filler:    filler,
		validator: validator,
		logger:    logger.Named("ui_authenticator"),
		now:       time.Now,
	}
}

// Authenticate leaves the page authenticated for the credential, restoring
// a stored session when possible and falling back to exactly one fresh
// UI login otherwise.
func (a *UIAuthenticator) Authenticate(ctx context.Context, page browser.Page, email, password string) error {
	sessionName := SessionName(email)
	log := a.logger.With(zap.String("session", sessionName))

	if a.tryRestore(ctx, page, sessionName, email, log) {
		log.Info("Session restored; skipping sign-in.")
		return nil
	}
	return a.freshLogin(ctx, page, email, password, sessionName, log)
}

// tryRestore loads and validates a stored session. Every failure mode here
// is a cache miss, not an error.
func (a *UIAuthenticator) tryRestore(ctx context.Context, page browser.Page, sessionName, email string, log *zap.Logger) bool {
	record, ok := a.store.Load(sessionName)
	if !ok {
		log.Debug("No stored session; proceeding to fresh login.")
		return false
	}
	if a.store.StaleByExpiry(record, a.now()) {
		log.Debug("Stored session expired locally; proceeding to fresh login.")
		return false
	}
	if !a.validator.Validate(ctx, page, record, email) {
		log.Debug("Stored session rejected by validator; proceeding to fresh login.")
		return false
	}
	return true
}

// freshLogin drives the sign-in form end to end and persists the resulting
// session.
func (a *UIAuthenticator) freshLogin(ctx context.Context, page browser.Page, email, password, sessionName string, log *zap.Logger) error {
	// Fail fast on a bad credential before any UI work.
	if err := a.verifier.Verify(ctx, email, password); err != nil {
		return err
	}

	if err := page.Navigate(ctx, a.cfg.BaseURL+a.cfg.SignInPath); err != nil {
		return fmt.Errorf("failed to open sign-in page: %w", err)
	}

	fields := []FormField{
		{Selector: emailSelector, Value: email},
		{Selector: passwordSelector, Value: password},
	}
	// The anti-forgery token is read best-effort; its absence just means
	// the form does not use one.
	if token, err := page.InputValue(ctx, csrfSelector); err == nil && token != "" {
		fields = append(fields, FormField{Selector: csrfSelector, Value: token})
	}

	if err := a.filler.FillWithRetry(ctx, page, fields); err != nil {
		return err
	}

	submitSelector, err := a.findSubmitControl(ctx, page, log)
	if err != nil {
		return err
	}

	response, err := page.WaitForResponse(ctx, a.callbackMatcher(), a.cfg.CallbackTimeout,
		func(triggerCtx context.Context) error {
			return page.Click(triggerCtx, submitSelector)
		})
	if err != nil {
		if errors.Is(err, browser.ErrResponseTimeout) {
			// Prefer the application's own error message over a
			// generic timeout when the flow landed on the error
			// route.
			if pageErr := a.checkErrorRoute(ctx, page); pageErr != nil {
				return pageErr
			}
			return &CallbackTimeoutError{Path: a.cfg.CallbackPath, Timeout: a.cfg.CallbackTimeout}
		}
		return fmt.Errorf("awaiting authentication callback: %w", err)
	}

	if !response.OK() {
		return &AuthFailedError{Status: response.Status, Body: response.Body}
	}

	if err := a.awaitLeaveErrorRoute(ctx, page); err != nil {
		return err
	}

	log.Info("Fresh login succeeded; persisting session.")
	return a.saveSession(ctx, page, sessionName)
}

func (a *UIAuthenticator) callbackMatcher() func(url string, status int) bool {
	path := a.cfg.CallbackPath
	return func(url string, status int) bool {
		return strings.Contains(url, path) && (status == 200 || status == 401)
	}
}

// findSubmitControl walks the ordered fallback chain: a sign-in-labelled
// control, then a log-in-labelled control, then any generic submit control.
// The chosen element is stamped with a marker attribute and clicked through
// it.
func (a *UIAuthenticator) findSubmitControl(ctx context.Context, page browser.Page, log *zap.Logger) (string, error) {
	chain := []struct {
		name   string
		script string
	}{
		{"sign_in_labelled", fmt.Sprintf(tagLabelledControlScript, `sign\s?in`)},
		{"log_in_labelled", fmt.Sprintf(tagLabelledControlScript, `log\s?in`)},
		{"generic_submit", tagGenericSubmitScript},
	}

	for _, candidate := range chain {
		var tagged bool
		if err := page.Evaluate(ctx, candidate.script, &tagged); err != nil {
			log.Debug("Submit control lookup failed.", zap.String("candidate", candidate.name), zap.Error(err))
			continue
		}
		if tagged {
			log.Debug("Submit control located.", zap.String("candidate", candidate.name))
			return "[" + submitMarker + "]", nil
		}
	}
	return "", ErrNoSubmitControl
}

// checkErrorRoute inspects the current location once and extracts the
// displayed error message when it is the application's error route.
func (a *UIAuthenticator) checkErrorRoute(ctx context.Context, page browser.Page) error {
	loc, err := page.Location(ctx)
	if err != nil || !a.isErrorRoute(loc) {
		return nil
	}
	return &ErrorPageError{Message: a.errorPageMessage(ctx, page)}
}

// awaitLeaveErrorRoute waits for the post-submit redirect to settle off the
// error route. Landing there despite a 2xx callback still means the login
// was rejected.
func (a *UIAuthenticator) awaitLeaveErrorRoute(ctx context.Context, page browser.Page) error {
	deadline := a.now().Add(a.cfg.ErrorPageTimeout)
	for {
		loc, err := page.Location(ctx)
		if err != nil {
			return nil // best-effort check
		}
		if !a.isErrorRoute(loc) {
			return nil
		}
		if a.now().After(deadline) {
			return &ErrorPageError{Message: a.errorPageMessage(ctx, page)}
		}
		select {
		case <-ctx.Done():
			return &ErrorPageError{Message: a.errorPageMessage(ctx, page)}
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (a *UIAuthenticator) isErrorRoute(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, a.cfg.ErrorPath)
}

func (a *UIAuthenticator) errorPageMessage(ctx context.Context, page browser.Page) string {
	msg, err := page.Text(ctx, `[role="alert"]`)
	msg = strings.TrimSpace(msg)
	if err != nil || msg == "" {
		return "Unknown error"
	}
	return msg
}

// saveSession captures the context's cookies and localStorage snapshot and
// replaces the stored record wholesale.
func (a *UIAuthenticator) saveSession(ctx context.Context, page browser.Page, sessionName string) error {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture cookies: %w", err)
	}

	record := &SessionRecord{Cookies: cookies}
	// The localStorage snapshot is optional; a failure here must not lose
	// an otherwise good session.
	if snapshot, err := page.LocalStorage(ctx); err == nil {
		record.LocalStorage = snapshot
	}

	return a.store.Save(sessionName, record)
}
