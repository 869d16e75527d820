package auth_test

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authharness/internal/auth"
	"github.com/xkilldash9x/authharness/internal/browser"
	"github.com/xkilldash9x/authharness/internal/config"
	"github.com/xkilldash9x/authharness/internal/testapp"
)

// TestEndToEnd_LoginAgainstRealBrowser drives the complete flow with a real
// headless browser against the in-process fake application: fresh login,
// session persistence, and restore on a second fixture.
//
// It needs a Chrome/Chromium binary, so it only runs when explicitly enabled:
//
//	AUTHHARNESS_BROWSER_TESTS=1 go test ./internal/auth -run EndToEnd
func TestEndToEnd_LoginAgainstRealBrowser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if os.Getenv("AUTHHARNESS_BROWSER_TESTS") == "" {
		t.Skip("set AUTHHARNESS_BROWSER_TESTS=1 to run browser integration tests")
	}

	app := testapp.New()
	app.AddUser(fixtureEmail, fixturePassword)
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	cfg := config.Default()
	cfg.Harness.BaseURL = server.URL
	cfg.Harness.SessionDir = t.TempDir()
	require.NoError(t, cfg.Normalize())

	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	manager, err := browser.NewManager(ctx, logger, cfg.Browser)
	require.NoError(t, err)
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()
		_ = manager.Shutdown(shutdownCtx)
	}()

	h := cfg.Harness
	verifier := auth.NewCredentialVerifier(h.BaseURL, h.VerifyPath, nil, logger)
	store := auth.NewSessionStore(h.SessionDir, h.SessionTokenCookie, logger)
	filler := auth.NewFormFiller(
		auth.RetryPolicy{MaxAttempts: h.FillAttempts, Delay: h.FillRetryDelay},
		h.VisibilityTimeout, logger)
	validator := auth.NewSessionValidator(h.BaseURL, h.SessionAPIPath, h.ProbeTimeout, logger)
	authenticator := auth.NewUIAuthenticator(h, verifier, store, filler, validator, logger)
	factory := auth.NewFixtureFactory(manager, authenticator, logger)

	// First fixture: fresh UI login through the real form.
	first, err := factory.GetPage(ctx, fixtureEmail, fixturePassword)
	require.NoError(t, err)
	assert.EqualValues(t, 1, app.SignInPageHits.Load())
	assert.EqualValues(t, 1, app.CallbackHits.Load())

	_, ok := store.Load(auth.SessionName(fixtureEmail))
	assert.True(t, ok, "fresh login must persist a session record")
	require.NoError(t, first.Close(ctx))

	// Second fixture: the stored session restores without touching the
	// sign-in form again.
	second, err := factory.GetPage(ctx, fixtureEmail, fixturePassword)
	require.NoError(t, err)
	assert.EqualValues(t, 1, app.SignInPageHits.Load(), "restore must not reopen the sign-in page")
	assert.EqualValues(t, 1, app.CallbackHits.Load(), "restore must not re-submit credentials")
	require.NoError(t, second.Close(ctx))
}
