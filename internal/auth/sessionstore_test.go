package auth_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authharness/internal/auth"
	"github.com/xkilldash9x/authharness/internal/browser"
)

const tokenCookie = "next-auth.session-token"

func newTestStore(t *testing.T) (*auth.SessionStore, string) {
	t.Helper()
	dir := t.TempDir()
	return auth.NewSessionStore(dir, tokenCookie, zaptest.NewLogger(t)), dir
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, "session-john@foo.com", auth.SessionName("john@foo.com"))
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	store, dir := newTestStore(t)

	record := &auth.SessionRecord{
		Cookies: []browser.Cookie{
			{Name: tokenCookie, Value: "abc", Domain: "localhost", Path: "/", HTTPOnly: true},
		},
		LocalStorage: `{"theme":"dark"}`,
	}
	name := auth.SessionName("john@foo.com")
	require.NoError(t, store.Save(name, record))

	loaded, ok := store.Load(name)
	require.True(t, ok)
	assert.Equal(t, record.Cookies, loaded.Cookies)
	assert.Equal(t, record.LocalStorage, loaded.LocalStorage)

	// No temp leftovers from the atomic write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, name+".json", entries[0].Name())
}

func TestSessionStore_SaveReplacesWholesale(t *testing.T) {
	store, _ := newTestStore(t)
	name := auth.SessionName("john@foo.com")

	require.NoError(t, store.Save(name, &auth.SessionRecord{
		Cookies:      []browser.Cookie{{Name: "old", Value: "1"}},
		LocalStorage: `{"stale":"yes"}`,
	}))
	require.NoError(t, store.Save(name, &auth.SessionRecord{
		Cookies: []browser.Cookie{{Name: tokenCookie, Value: "2"}},
	}))

	loaded, ok := store.Load(name)
	require.True(t, ok)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, tokenCookie, loaded.Cookies[0].Name)
	assert.Empty(t, loaded.LocalStorage, "prior localStorage must not survive a replace")
}

func TestSessionStore_LoadMisses(t *testing.T) {
	store, dir := newTestStore(t)

	t.Run("missing file", func(t *testing.T) {
		_, ok := store.Load("session-absent@foo.com")
		assert.False(t, ok)
	})

	t.Run("corrupt json", func(t *testing.T) {
		name := "session-corrupt@foo.com"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte("{not json"), 0o644))
		_, ok := store.Load(name)
		assert.False(t, ok)
	})

	t.Run("empty cookie list", func(t *testing.T) {
		name := "session-empty@foo.com"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(`{"cookies":[]}`), 0o644))
		_, ok := store.Load(name)
		assert.False(t, ok)
	})
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "john@foo.com",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestSessionStore_StaleByExpiry(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now()

	t.Run("expired cookie is stale", func(t *testing.T) {
		record := &auth.SessionRecord{Cookies: []browser.Cookie{
			{Name: tokenCookie, Value: "opaque", Expires: float64(now.Add(-time.Hour).Unix())},
		}}
		assert.True(t, store.StaleByExpiry(record, now))
	})

	t.Run("expired jwt claim is stale", func(t *testing.T) {
		record := &auth.SessionRecord{Cookies: []browser.Cookie{
			{Name: tokenCookie, Value: signedToken(t, now.Add(-time.Minute))},
		}}
		assert.True(t, store.StaleByExpiry(record, now))
	})

	t.Run("live jwt claim is not stale", func(t *testing.T) {
		record := &auth.SessionRecord{Cookies: []browser.Cookie{
			{Name: tokenCookie, Value: signedToken(t, now.Add(time.Hour))},
		}}
		assert.False(t, store.StaleByExpiry(record, now))
	})

	t.Run("opaque token without expiry is not stale", func(t *testing.T) {
		record := &auth.SessionRecord{Cookies: []browser.Cookie{
			{Name: tokenCookie, Value: "not-a-jwt"},
		}}
		assert.False(t, store.StaleByExpiry(record, now))
	})

	t.Run("missing token cookie is not stale", func(t *testing.T) {
		record := &auth.SessionRecord{Cookies: []browser.Cookie{
			{Name: "unrelated", Value: "x"},
		}}
		assert.False(t, store.StaleByExpiry(record, now))
	})
}
