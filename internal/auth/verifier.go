// File: internal/auth/verifier.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CredentialVerifier performs the pre-flight, out-of-band check that a
// credential is accepted by the backend, so a bad credential fails fast with
// a precise error instead of a confusing UI timeout.
type CredentialVerifier struct {
	baseURL    string
	verifyPath string
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewCredentialVerifier builds a verifier for the given application base
// URL. The limiter keeps parallel test workers from hammering the endpoint;
// pass nil to disable limiting.
func NewCredentialVerifier(baseURL, verifyPath string, limiter *rate.Limiter, logger *zap.Logger) *CredentialVerifier {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &CredentialVerifier{
		baseURL:    baseURL,
		verifyPath: verifyPath,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		logger:     logger.Named("credential_verifier"),
	}
}

// Verify checks the credential against the backend's verification endpoint.
// Returns nil when accepted, ErrInvalidCredentials when rejected, and a
// *VerificationUnavailableError when no verdict could be obtained.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return &VerificationUnavailableError{Err: err}
	}

	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return &VerificationUnavailableError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+v.verifyPath, bytes.NewReader(payload))
	if err != nil {
		return &VerificationUnavailableError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("Verification request failed", zap.Error(err))
		return &VerificationUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		v.logger.Debug("Backend rejected credential", zap.String("email", email))
		return ErrInvalidCredentials
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Fall through to body inspection.
	default:
		// 400 (malformed input) and 5xx are verifier problems, not a
		// verdict on the credential.
		return &VerificationUnavailableError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var verdict struct {
		Valid bool `json:"valid"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &VerificationUnavailableError{Err: err}
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		return &VerificationUnavailableError{Err: fmt.Errorf("malformed verification response: %w", err)}
	}
	if !verdict.Valid {
		return ErrInvalidCredentials
	}

	v.logger.Debug("Credential verified", zap.String("email", email))
	return nil
}
