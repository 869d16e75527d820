package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPage satisfies Page with no-ops; only Close is interesting here.
type stubPage struct {
	closeCalls int
}

func (s *stubPage) ID() string                                  { return "stub" }
func (s *stubPage) Navigate(context.Context, string) error      { return nil }
func (s *stubPage) Location(context.Context) (string, error)    { return "", nil }
func (s *stubPage) Fill(context.Context, string, string) error  { return nil }
func (s *stubPage) Click(context.Context, string) error         { return nil }
func (s *stubPage) Text(context.Context, string) (string, error) {
	return "", nil
}
func (s *stubPage) InputValue(context.Context, string) (string, error) {
	return "", nil
}
func (s *stubPage) IsVisible(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (s *stubPage) Evaluate(context.Context, string, any) error      { return nil }
func (s *stubPage) EvaluateAsync(context.Context, string, any) error { return nil }
func (s *stubPage) WaitForResponse(context.Context, func(string, int) bool, time.Duration, func(context.Context) error) (*Response, error) {
	return nil, ErrResponseTimeout
}
func (s *stubPage) Cookies(context.Context) ([]Cookie, error)   { return nil, nil }
func (s *stubPage) SetCookies(context.Context, []Cookie) error  { return nil }
func (s *stubPage) LocalStorage(context.Context) (string, error) {
	return "", nil
}
func (s *stubPage) Close(context.Context) error {
	s.closeCalls++
	return nil
}

func TestPageWrapper_CloseIsIdempotent(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	stub := &stubPage{}
	pw := &pageWrapper{Page: stub, wg: &wg}

	require.NoError(t, pw.Close(context.Background()))
	// A second close must not close the underlying page again or panic the
	// WaitGroup counter.
	require.NoError(t, pw.Close(context.Background()))
	assert.Equal(t, 1, stub.closeCalls)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitGroup was not released by Close")
	}
}

func TestMergeDeadline(t *testing.T) {
	t.Run("adopts the bound deadline", func(t *testing.T) {
		base := context.Background()
		bound, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		merged, cancelMerged := mergeDeadline(base, bound)
		defer cancelMerged()

		boundDeadline, _ := bound.Deadline()
		mergedDeadline, ok := merged.Deadline()
		require.True(t, ok)
		assert.Equal(t, boundDeadline, mergedDeadline)
	})

	t.Run("propagates bound cancellation", func(t *testing.T) {
		base := context.Background()
		bound, cancelBound := context.WithCancel(context.Background())

		merged, cancelMerged := mergeDeadline(base, bound)
		defer cancelMerged()

		cancelBound()
		select {
		case <-merged.Done():
		case <-time.After(time.Second):
			t.Fatal("merged context did not observe bound cancellation")
		}
	})

	t.Run("propagates base cancellation", func(t *testing.T) {
		base, cancelBase := context.WithCancel(context.Background())
		merged, cancelMerged := mergeDeadline(base, context.Background())
		defer cancelMerged()

		cancelBase()
		select {
		case <-merged.Done():
		case <-time.After(time.Second):
			t.Fatal("merged context did not observe base cancellation")
		}
	})
}
