// File: internal/auth/sessionstore.go
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authharness/internal/browser"
)

// SessionRecord is the persisted browsing state of one authenticated
// session: the full cookie set plus a serialized localStorage snapshot.
// A record read back from disk is untrusted until a validator confirms it.
type SessionRecord struct {
	Cookies      []browser.Cookie `json:"cookies"`
	LocalStorage string           `json:"localStorage,omitempty"`
}

// SessionName derives the deterministic store key for a credential.
func SessionName(email string) string {
	return "session-" + email
}

// SessionStore persists session records as one JSON file per session name.
// The on-disk directory is shared across parallel test workers; writes are
// made atomic with a write-temp-then-rename so readers never observe a
// partially written record.
type SessionStore struct {
	dir         string
	tokenCookie string
	json        jsoniter.API
	logger      *zap.Logger
}

// NewSessionStore creates a store rooted at dir. tokenCookie names the
// session-token cookie inspected by StaleByExpiry; empty disables the
// expiry fast-path.
func NewSessionStore(dir, tokenCookie string, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		dir:         dir,
		tokenCookie: tokenCookie,
		json:        jsoniter.ConfigCompatibleWithStandardLibrary,
		logger:      logger.Named("session_store"),
	}
}

func (s *SessionStore) path(sessionName string) string {
	return filepath.Join(s.dir, sessionName+".json")
}

// Load reads the record stored under sessionName. Any structural problem —
// missing file, malformed JSON, empty cookie list — is a cache miss, never
// an error: the caller falls back to a fresh login.
func (s *SessionStore) Load(sessionName string) (*SessionRecord, bool) {
	data, err := os.ReadFile(s.path(sessionName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("Session file unreadable, treating as miss.",
				zap.String("session", sessionName), zap.Error(err))
		}
		return nil, false
	}

	var record SessionRecord
	if err := s.json.Unmarshal(data, &record); err != nil {
		s.logger.Warn("Session file corrupt, treating as miss.",
			zap.String("session", sessionName),
			zap.Error(fmt.Errorf("%w: %v", ErrSessionCorrupt, err)))
		return nil, false
	}
	if len(record.Cookies) == 0 {
		s.logger.Warn("Session file has no cookies, treating as miss.",
			zap.String("session", sessionName), zap.Error(ErrSessionCorrupt))
		return nil, false
	}

	return &record, true
}

// Save serializes the record and replaces any prior record for the name
// wholesale. The storage directory is created on first use.
func (s *SessionStore) Save(sessionName string, record *SessionRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory %q: %w", s.dir, err)
	}

	data, err := s.json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize session %q: %w", sessionName, err)
	}

	// Write to a temp file in the same directory, then rename it over the
	// destination. Rename is atomic, so concurrent workers racing on the
	// same name degrade to last-writer-wins instead of torn files.
	final := s.path(sessionName)
	tmp, err := os.CreateTemp(s.dir, sessionName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session %q: %w", sessionName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish session %q: %w", sessionName, err)
	}

	s.logger.Debug("Session persisted.",
		zap.String("session", sessionName), zap.Int("cookies", len(record.Cookies)))
	return nil
}

// StaleByExpiry is a best-effort local staleness check that lets the restore
// path skip a validation round-trip that is certain to fail. It inspects the
// session-token cookie's own expiry and, when the value parses as a JWT, its
// exp claim. Anything unparsable is NOT stale; the validator decides.
func (s *SessionStore) StaleByExpiry(record *SessionRecord, now time.Time) bool {
	if s.tokenCookie == "" || record == nil {
		return false
	}
	for _, c := range record.Cookies {
		if c.Name != s.tokenCookie {
			continue
		}
		if c.Expired(now) {
			return true
		}
		if exp, ok := tokenExpiry(c.Value); ok && exp.Before(now) {
			return true
		}
		return false
	}
	return false
}

// tokenExpiry extracts the exp claim from a JWT-shaped token without
// verifying its signature. Signature verification is the backend's job; the
// harness only wants the timestamp.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
