// File: internal/auth/validator.go
package auth

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/browser"
)

// sessionAPIScript asks the application's session-introspection endpoint,
// from inside the page, whether a user identity is present.
const sessionAPIScript = `
(async () => {
    try {
        const res = await fetch(%q);
        const data = await res.json();
        return !!(data && data.user && data.user.email);
    } catch (e) {
        return false;
    }
})()
`

// visibleByTextScript reports whether any interactive control whose text
// matches the pattern is currently rendered. CSS alone cannot select by
// text content, so the check runs in the page.
const visibleByTextScript = `
(() => {
    const re = new RegExp(%q, 'i');
    return Array.from(document.querySelectorAll('button, a, [role="button"], [role="link"]'))
        .some(el => re.test((el.textContent || '').trim()) && el.offsetParent !== null);
})()
`

// SessionValidator decides whether a live browsing context is currently
// authenticated. A candidate cookie set is applied, the application root is
// loaded, and a fixed battery of independent probes runs concurrently; one
// visible indicator is sufficient, since different UI states expose
// different indicators.
type SessionValidator struct {
	baseURL        string
	sessionAPIPath string
	probeTimeout   time.Duration
	logger         *zap.Logger
}

// NewSessionValidator builds a validator against the application base URL.
// sessionAPIPath may be empty to disable the API probe and rely on DOM
// probes alone.
func NewSessionValidator(baseURL, sessionAPIPath string, probeTimeout time.Duration, logger *zap.Logger) *SessionValidator {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &SessionValidator{
		baseURL:        baseURL,
		sessionAPIPath: sessionAPIPath,
		probeTimeout:   probeTimeout,
		logger:         logger.Named("session_validator"),
	}
}

// Validate applies the record's cookies to the context, navigates to the
// application root, and probes for authenticated-state indicators. The
// record stays untrusted until a probe confirms it.
func (v *SessionValidator) Validate(ctx context.Context, page browser.Page, record *SessionRecord, email string) bool {
	if record != nil && len(record.Cookies) > 0 {
		if err := page.SetCookies(ctx, record.Cookies); err != nil {
			v.logger.Warn("Failed to apply candidate cookies.", zap.Error(err))
			return false
		}
	}

	if err := page.Navigate(ctx, v.baseURL); err != nil {
		v.logger.Warn("Navigation to application root failed.", zap.Error(err))
		return false
	}

	ok, results := AnyVisible(ctx, v.probes(page, email))
	if !ok {
		fields := make([]zap.Field, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				fields = append(fields, zap.NamedError("probe_"+r.Name, r.Err))
			}
		}
		v.logger.Debug("No authenticated-state indicator found.", fields...)
	}
	return ok
}

// probes assembles the battery: the API introspection check plus DOM checks
// for the email-labelled control and a sign-out control. Either kind of
// indicator satisfies validation.
func (v *SessionValidator) probes(page browser.Page, email string) []Probe {
	var probes []Probe

	if v.sessionAPIPath != "" {
		script := fmt.Sprintf(sessionAPIScript, v.sessionAPIPath)
		probes = append(probes, Probe{
			Name:    "session_api",
			Timeout: v.probeTimeout,
			Run: func(ctx context.Context) (bool, error) {
				var authenticated bool
				if err := page.EvaluateAsync(ctx, script, &authenticated); err != nil {
					return false, err
				}
				return authenticated, nil
			},
		})
	}

	probes = append(probes,
		v.domProbe(page, "email_control", "^"+regexp.QuoteMeta(email)+"$"),
		v.domProbe(page, "sign_out_control", `sign\s?out|log\s?out`),
	)
	return probes
}

func (v *SessionValidator) domProbe(page browser.Page, name, pattern string) Probe {
	script := fmt.Sprintf(visibleByTextScript, pattern)
	return Probe{
		Name:    name,
		Timeout: v.probeTimeout,
		Run: func(ctx context.Context) (bool, error) {
			var visible bool
			if err := page.Evaluate(ctx, script, &visible); err != nil {
				return false, err
			}
			return visible, nil
		},
	}
}
