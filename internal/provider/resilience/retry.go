package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a bounded, fixed-delay retry policy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the wait between consecutive attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns three attempts one minute apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       60 * time.Second,
	}
}

// Permanent wraps err so that Retry stops immediately and returns err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a Permanent error, the policy is
// exhausted, or ctx is done. op receives the 1-based attempt number. notify,
// when non-nil, is called before each wait with the attempt that just failed.
//
// It returns the number of attempts made and the last error. Permanent errors
// are returned unwrapped. If ctx ends while waiting, ctx.Err() is returned.
func Retry(
	ctx context.Context,
	policy RetryPolicy,
	op func(attempt int) error,
	notify func(attempt int, err error, wait time.Duration),
) (int, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(policy.MaxAttempts-1)),
		ctx,
	)

	attempts := 0
	err := backoff.RetryNotify(
		func() error {
			attempts++
			return op(attempts)
		},
		bo,
		func(err error, wait time.Duration) {
			if notify != nil {
				notify(attempts, err, wait)
			}
		},
	)

	return attempts, err
}
