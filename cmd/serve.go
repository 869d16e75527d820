// -- cmd/serve.go --
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/observability"
	"github.com/xkilldash9x/authharness/internal/testapp"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the built-in fake application for local harness development.",
	Long: `Serve starts an in-process stand-in for the application's authentication
surface, pre-loaded with the configured fixture users. Point the harness
base_url at it to exercise the full login flow without the real application.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := testapp.New()
		for _, u := range cfg.Seed.Users {
			app.AddUser(u.Email, u.Password)
		}

		server := &http.Server{Addr: serveAddr, Handler: app.Handler()}
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		logger.Info("Fake application listening",
			zap.String("addr", serveAddr), zap.Int("users", len(cfg.Seed.Users)))

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:3000", "listen address")
	rootCmd.AddCommand(serveCmd)
}
