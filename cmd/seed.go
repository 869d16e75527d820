// -- cmd/seed.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/authharness/internal/observability"
	"github.com/xkilldash9x/authharness/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ensure the configured fixture users exist in the application.",
	Long: `Seed posts the configured fixture users to the application's test-setup
endpoint. When a database URL is configured it falls back to upserting the
users directly if the endpoint is unavailable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var db seed.DB
		if cfg.Seed.DatabaseURL != "" {
			pool, err := pgxpool.New(ctx, cfg.Seed.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()
			db = pool
		}

		seeder := seed.New(cfg.Harness.BaseURL, db, observability.GetLogger())
		if err := seeder.Ensure(ctx, cfg.Seed.Users); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d fixture user(s)\n", len(cfg.Seed.Users))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
