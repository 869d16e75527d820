// File: internal/auth/errors.go
package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions that carry no extra context.
var (
	// ErrInvalidCredentials means the backend rejected the credential
	// during pre-flight verification.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNoSubmitControl means no control in the submit fallback chain
	// could be located on the sign-in page.
	ErrNoSubmitControl = errors.New("auth: no submit control found on sign-in page")

	// ErrSessionCorrupt marks a stored session record that could not be
	// parsed or lacks a usable cookie set. It is always recovered
	// internally as a cache miss and never propagates out of the
	// authenticator.
	ErrSessionCorrupt = errors.New("auth: stored session record is corrupt")
)

// VerificationUnavailableError indicates the credential-verification
// endpoint could not give a verdict: transport failure or a server-side
// error. Distinct from ErrInvalidCredentials.
type VerificationUnavailableError struct {
	Status int // zero when the request never completed
	Err    error
}

func (e *VerificationUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: credential verification unavailable: %v", e.Err)
	}
	return fmt.Sprintf("auth: credential verification unavailable (status %d)", e.Status)
}

func (e *VerificationUnavailableError) Unwrap() error { return e.Err }

// FieldFillError reports a form field that could not be filled after
// exhausting all retry attempts.
type FieldFillError struct {
	Selector string
	Attempts int
	Err      error
}

func (e *FieldFillError) Error() string {
	return fmt.Sprintf("auth: failed to fill %q after %d attempts: %v", e.Selector, e.Attempts, e.Err)
}

func (e *FieldFillError) Unwrap() error { return e.Err }

// CallbackTimeoutError reports that no authentication callback response was
// observed within the deadline after submitting the form.
type CallbackTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *CallbackTimeoutError) Error() string {
	return fmt.Sprintf("auth: no response matching %q within %s", e.Path, e.Timeout)
}

// AuthFailedError reports a terminal non-2xx authentication callback
// response, with the body attached for diagnosis.
type AuthFailedError struct {
	Status int
	Body   string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("auth: login rejected with status %d: %s", e.Status, e.Body)
}

// ErrorPageError reports that the flow landed on the application's error
// route, with the displayed message extracted.
type ErrorPageError struct {
	Message string
}

func (e *ErrorPageError) Error() string {
	return fmt.Sprintf("auth: landed on error page: %s", e.Message)
}
