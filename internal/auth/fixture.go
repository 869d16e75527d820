// File: internal/auth/fixture.go
package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/browser"
)

// PageFactory creates fresh, isolated browsing contexts. Implemented by
// browser.Manager; faked in tests.
type PageFactory interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// FixtureFactory hands out one authenticated browsing context per
// credential. Each page has an independent cookie jar and storage, and is
// owned exclusively by the caller until closed; pages are never shared or
// reused across invocations.
type FixtureFactory struct {
	pages         PageFactory
	authenticator *UIAuthenticator
	logger        *zap.Logger
}

// NewFixtureFactory wires the factory.
func NewFixtureFactory(pages PageFactory, authenticator *UIAuthenticator, logger *zap.Logger) *FixtureFactory {
	return &FixtureFactory{
		pages:         pages,
		authenticator: authenticator,
		logger:        logger.Named("fixture_factory"),
	}
}

// GetPage creates an isolated browsing context, authenticates it for the
// credential, and returns it ready to use. On authentication failure the
// context is closed before the error propagates, so a failed fixture never
// leaks a browser.
func (f *FixtureFactory) GetPage(ctx context.Context, email, password string) (browser.Page, error) {
	page, err := f.pages.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	if err := f.authenticator.Authenticate(ctx, page, email, password); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if closeErr := page.Close(closeCtx); closeErr != nil {
			f.logger.Warn("Failed to close page after authentication failure.",
				zap.String("page_id", page.ID()), zap.Error(closeErr))
		}
		return nil, err
	}

	f.logger.Debug("Authenticated fixture ready.",
		zap.String("email", email), zap.String("page_id", page.ID()))
	return page, nil
}
