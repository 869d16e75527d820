package seed_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authharness/internal/config"
	"github.com/xkilldash9x/authharness/internal/seed"
	"github.com/xkilldash9x/authharness/internal/testapp"
)

var fixtureUsers = []config.SeedUser{
	{Email: "john@foo.com", Password: "changeme", Verified: true},
	{Email: "jane@foo.com", Password: "changeme2", Verified: false},
}

func TestSeeder_EnsureViaAPI(t *testing.T) {
	app := testapp.New()
	app.AddUser("john@foo.com", "changeme")
	app.AddUser("jane@foo.com", "changeme2")
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	seeder := seed.New(server.URL, nil, zaptest.NewLogger(t))
	require.NoError(t, seeder.Ensure(context.Background(), fixtureUsers))
}

func TestSeeder_APIFailureWithoutDatabaseIsFatal(t *testing.T) {
	app := testapp.New() // no users registered, setup reports failure
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	seeder := seed.New(server.URL, nil, zaptest.NewLogger(t))
	err := seeder.Ensure(context.Background(), fixtureUsers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSeeder_FallsBackToDirectDatabase(t *testing.T) {
	app := testapp.New() // setup endpoint fails, forcing the fallback
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Upserts run concurrently, so their order is not fixed.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing()
	for _, u := range fixtureUsers {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(u.Email, pgxmock.AnyArg(), u.Verified).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	seeder := seed.New(server.URL, mock, zaptest.NewLogger(t))
	require.NoError(t, seeder.Ensure(context.Background(), fixtureUsers))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeeder_DirectFailureReportsBothErrors(t *testing.T) {
	app := testapp.New()
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	seeder := seed.New(server.URL, mock, zaptest.NewLogger(t))
	err = seeder.Ensure(context.Background(), fixtureUsers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
	assert.Contains(t, err.Error(), "test-setup")
}

func TestSeeder_NoUsersIsANoOp(t *testing.T) {
	// No server at all: the seeder must not issue a request.
	seeder := seed.New("http://127.0.0.1:1", nil, zaptest.NewLogger(t))
	require.NoError(t, seeder.Ensure(context.Background(), nil))
}
