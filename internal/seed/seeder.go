// File: internal/seed/seeder.go
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/authharness/internal/config"
)

// DB abstracts the pgx pool for the direct-database path, allowing pgxmock
// in tests.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Seeder guarantees fixture credentials exist before the orchestrator runs.
// The primary path posts to the application's test-setup endpoint; when a
// database handle is configured, a direct upsert serves as fallback for
// applications that do not expose the endpoint. Seeding failure is fatal to
// the test run as a whole.
type Seeder struct {
	baseURL   string
	setupPath string
	client    *http.Client
	db        DB
	logger    *zap.Logger
}

// New builds a seeder. db may be nil to disable the direct-database
// fallback.
func New(baseURL string, db DB, logger *zap.Logger) *Seeder {
	return &Seeder{
		baseURL:   baseURL,
		setupPath: "/api/test-setup",
		client:    &http.Client{Timeout: 15 * time.Second},
		db:        db,
		logger:    logger.Named("seeder"),
	}
}

// Ensure makes sure every fixture user exists, preferring the application's
// own test-setup endpoint and falling back to the database when configured.
func (s *Seeder) Ensure(ctx context.Context, users []config.SeedUser) error {
	if len(users) == 0 {
		return nil
	}

	apiErr := s.EnsureViaAPI(ctx, users)
	if apiErr == nil {
		return nil
	}
	if s.db == nil {
		return apiErr
	}

	s.logger.Warn("Test-setup endpoint failed; falling back to direct database seeding.", zap.Error(apiErr))
	if err := s.EnsureDirect(ctx, users); err != nil {
		return fmt.Errorf("test-setup endpoint failed (%v) and direct seeding failed: %w", apiErr, err)
	}
	return nil
}

// EnsureViaAPI posts the fixture users to the application's test-setup
// endpoint. Any non-2xx response is an error carrying the body.
func (s *Seeder) EnsureViaAPI(ctx context.Context, users []config.SeedUser) error {
	type wireUser struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Verified bool   `json:"verified"`
	}
	payload := struct {
		Users []wireUser `json:"users"`
	}{Users: make([]wireUser, 0, len(users))}
	for _, u := range users {
		payload.Users = append(payload.Users, wireUser{Email: u.Email, Password: u.Password, Verified: u.Verified})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+s.setupPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("test-setup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return fmt.Errorf("test-setup returned status %d: %s", resp.StatusCode, respBody)
	}

	s.logger.Info("Fixture users confirmed via test-setup endpoint.", zap.Int("count", len(users)))
	return nil
}

// upsertUserSQL keeps the stored hash in sync with the fixture password so
// a changed fixture credential does not strand stale rows.
const upsertUserSQL = `
    INSERT INTO users (email, password, verified)
    VALUES ($1, $2, $3)
    ON CONFLICT (email) DO UPDATE SET
        password = EXCLUDED.password,
        verified = EXCLUDED.verified;
`

// EnsureDirect upserts the fixture users straight into the application
// database, hashing passwords the way the backend expects.
func (s *Seeder) EnsureDirect(ctx context.Context, users []config.SeedUser) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, user := range users {
		g.Go(func() error {
			hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password for %s: %w", user.Email, err)
			}
			if _, err := s.db.Exec(gctx, upsertUserSQL, user.Email, string(hash), user.Verified); err != nil {
				return fmt.Errorf("failed to upsert user %s: %w", user.Email, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("Fixture users seeded directly into database.", zap.Int("count", len(users)))
	return nil
}
