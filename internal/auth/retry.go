// File: internal/auth/retry.go
package auth

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is an explicit retry policy value passed into the form filler
// and the restore/fresh-login boundary, instead of ad hoc sleep loops.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy matches the historical fill behaviour: three attempts
// with a 500ms pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// backoff converts the policy into a go-retry backoff.
func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond // NewConstant rejects non-positive delays
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
}
