// -- cmd/verify.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/authharness/internal/auth"
	"github.com/xkilldash9x/authharness/internal/observability"
)

var (
	verifyEmail    string
	verifyPassword string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a credential against the application's verification endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h := cfg.Harness
		var limiter *rate.Limiter
		if h.VerifyRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(h.VerifyRPS), h.VerifyBurst)
		}
		verifier := auth.NewCredentialVerifier(h.BaseURL, h.VerifyPath, limiter, observability.GetLogger())

		if err := verifier.Verify(ctx, verifyEmail, verifyPassword); err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return fmt.Errorf("credentials rejected for %s", verifyEmail)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "credentials valid for %s\n", verifyEmail)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyEmail, "email", "", "credential email (required)")
	verifyCmd.Flags().StringVar(&verifyPassword, "password", "", "credential password (required)")
	_ = verifyCmd.MarkFlagRequired("email")
	_ = verifyCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(verifyCmd)
}
