package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqcollect/internal/provider/resilience"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var notified []int

	attempts, err := resilience.Retry(
		context.Background(),
		resilience.RetryPolicy{MaxAttempts: 3, Delay: 0},
		func(attempt int) error {
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		},
		func(attempt int, _ error, wait time.Duration) {
			notified = append(notified, attempt)
			assert.Equal(t, time.Duration(0), wait)
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestRetry_Exhausted(t *testing.T) {
	lastErr := errors.New("still failing")

	attempts, err := resilience.Retry(
		context.Background(),
		resilience.RetryPolicy{MaxAttempts: 3},
		func(int) error { return lastErr },
		nil,
	)

	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	notified := false

	attempts, err := resilience.Retry(
		context.Background(),
		resilience.RetryPolicy{MaxAttempts: 3, Delay: time.Hour},
		func(int) error { return resilience.Permanent(fatal) },
		func(int, error, time.Duration) { notified = true },
	)

	assert.Equal(t, fatal, err, "permanent error is returned unwrapped")
	assert.Equal(t, 1, attempts)
	assert.False(t, notified)
}

func TestRetry_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	attempts, err := resilience.Retry(
		ctx,
		resilience.RetryPolicy{MaxAttempts: 3, Delay: time.Hour},
		func(int) error { return errors.New("transient") },
		func(int, error, time.Duration) { cancel() },
	)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRetry_MinimumOneAttempt(t *testing.T) {
	attempts, err := resilience.Retry(
		context.Background(),
		resilience.RetryPolicy{},
		func(int) error { return errors.New("x") },
		nil,
	)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := resilience.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 60*time.Second, p.Delay)
}
