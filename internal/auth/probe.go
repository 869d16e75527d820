// File: internal/auth/probe.go
package auth

import (
	"context"
	"fmt"
	"time"
)

// Probe is an independent, timed check for an authenticated-state
// indicator.
type Probe struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) (bool, error)
}

// ProbeResult captures one probe's outcome. A probe that errored or
// panicked reports Visible=false; it never disturbs its siblings.
type ProbeResult struct {
	Name    string
	Visible bool
	Err     error
}

// AnyVisible runs all probes concurrently, each bounded by its own timeout,
// and returns true as soon as any probe reports visible (first-success-wins,
// logical OR). When no probe succeeds it returns false together with every
// probe's result for diagnosis.
func AnyVisible(ctx context.Context, probes []Probe) (bool, []ProbeResult) {
	if len(probes) == 0 {
		return false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so stragglers can finish after an early return.
	results := make(chan ProbeResult, len(probes))
	for _, probe := range probes {
		go func(p Probe) {
			results <- runProbe(runCtx, p)
		}(probe)
	}

	var collected []ProbeResult
	for range probes {
		select {
		case res := <-results:
			if res.Visible {
				return true, append(collected, res)
			}
			collected = append(collected, res)
		case <-ctx.Done():
			return false, append(collected, ProbeResult{Name: "context", Err: ctx.Err()})
		}
	}
	return false, collected
}

// runProbe executes a single probe with its own timeout, converting errors
// and panics into a non-visible result at the combinator boundary.
func runProbe(ctx context.Context, p Probe) (res ProbeResult) {
	res = ProbeResult{Name: p.Name}
	defer func() {
		if r := recover(); r != nil {
			res.Visible = false
			res.Err = fmt.Errorf("probe %q panicked: %v", p.Name, r)
		}
	}()

	probeCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	visible, err := p.Run(probeCtx)
	res.Visible = visible && err == nil
	res.Err = err
	return res
}
