// -- cmd/login.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/authharness/internal/auth"
	"github.com/xkilldash9x/authharness/internal/browser"
	"github.com/xkilldash9x/authharness/internal/observability"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Acquire an authenticated browser session for a credential.",
	Long: `Login restores a stored session for the credential when one exists and
still validates, and otherwise performs a single fresh UI login and persists
the resulting session to the session directory.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "credential email (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "credential password (required)")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := browser.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown was not clean", zap.Error(err))
		}
	}()

	factory := buildFixtureFactory(manager, logger)
	page, err := factory.GetPage(ctx, loginEmail, loginPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fmt.Errorf("credentials rejected for %s: %w", loginEmail, err)
		}
		return err
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	defer func() { _ = page.Close(closeCtx) }()

	logger.Info("Authenticated session ready",
		zap.String("email", loginEmail),
		zap.String("session_dir", cfg.Harness.SessionDir))
	fmt.Fprintf(cmd.OutOrStdout(), "session for %s saved under %s\n", loginEmail, cfg.Harness.SessionDir)
	return nil
}

// buildFixtureFactory wires the orchestrator stack from the loaded config.
func buildFixtureFactory(manager *browser.Manager, logger *zap.Logger) *auth.FixtureFactory {
	h := cfg.Harness

	var limiter *rate.Limiter
	if h.VerifyRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.VerifyRPS), h.VerifyBurst)
	}

	verifier := auth.NewCredentialVerifier(h.BaseURL, h.VerifyPath, limiter, logger)
	store := auth.NewSessionStore(h.SessionDir, h.SessionTokenCookie, logger)
	filler := auth.NewFormFiller(
		auth.RetryPolicy{MaxAttempts: h.FillAttempts, Delay: h.FillRetryDelay},
		h.VisibilityTimeout, logger)
	validator := auth.NewSessionValidator(h.BaseURL, h.SessionAPIPath, h.ProbeTimeout, logger)
	authenticator := auth.NewUIAuthenticator(h, verifier, store, filler, validator, logger)
	return auth.NewFixtureFactory(manager, authenticator, logger)
}
