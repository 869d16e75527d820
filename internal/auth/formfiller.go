// File: internal/auth/formfiller.go
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/browser"
)

// FormField identifies one interactive element and the literal text to
// enter into it.
type FormField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// hiddenInputsScript collects every hidden input on the page along with its
// current, server-rendered value. This captures anti-forgery tokens and
// similar server-injected state without the caller having to know about
// them.
const hiddenInputsScript = `
Array.from(document.querySelectorAll('input[type="hidden"]'))
    .filter(el => el.name)
    .map(el => ({selector: 'input[name="' + el.name + '"]', value: el.value}))
`

// FormFiller fills fields strictly in the order supplied. Later fields may
// depend on DOM state revealed by earlier ones, so there is no reordering
// and no parallelism.
type FormFiller struct {
	policy            RetryPolicy
	visibilityTimeout time.Duration
	logger            *zap.Logger
}

// NewFormFiller builds a filler with the given retry policy and per-field
// visibility timeout.
func NewFormFiller(policy RetryPolicy, visibilityTimeout time.Duration, logger *zap.Logger) *FormFiller {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 2 * time.Second
	}
	return &FormFiller{
		policy:            policy,
		visibilityTimeout: visibilityTimeout,
		logger:            logger.Named("form_filler"),
	}
}

// FillWithRetry discovers hidden inputs, prepends them to the caller's
// fields, and fills everything in order. Each field gets up to
// policy.MaxAttempts attempts; exhaustion fails with a *FieldFillError
// naming the selector.
func (f *FormFiller) FillWithRetry(ctx context.Context, page browser.Page, fields []FormField) error {
	hidden, err := f.discoverHiddenFields(ctx, page)
	if err != nil {
		// Hidden-field discovery is best-effort; pages without hidden
		// inputs are common.
		f.logger.Debug("Hidden field discovery failed.", zap.Error(err))
	}

	all := make([]FormField, 0, len(hidden)+len(fields))
	all = append(all, hidden...)
	all = append(all, fields...)

	for _, field := range all {
		if err := f.fillField(ctx, page, field); err != nil {
			return err
		}
	}
	return nil
}

func (f *FormFiller) discoverHiddenFields(ctx context.Context, page browser.Page) ([]FormField, error) {
	var hidden []FormField
	if err := page.Evaluate(ctx, hiddenInputsScript, &hidden); err != nil {
		return nil, err
	}
	if len(hidden) > 0 {
		f.logger.Debug("Discovered hidden inputs.", zap.Int("count", len(hidden)))
	}
	return hidden, nil
}

// fillField performs the wait-visible, clear-and-fill, blur sequence for one
// field under the retry policy.
func (f *FormFiller) fillField(ctx context.Context, page browser.Page, field FormField) error {
	var lastErr error
	err := retry.Do(ctx, f.policy.backoff(), func(ctx context.Context) error {
		visible, err := page.IsVisible(ctx, field.Selector, f.visibilityTimeout)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		if !visible {
			lastErr = fmt.Errorf("element %q not visible within %s", field.Selector, f.visibilityTimeout)
			return retry.RetryableError(lastErr)
		}
		if err := page.Fill(ctx, field.Selector, field.Value); err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return &FieldFillError{Selector: field.Selector, Attempts: f.policy.MaxAttempts, Err: lastErr}
	}
	return nil
}
