package airquality_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	timedOut := &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}

	tests := []struct {
		name     string
		err      error
		expected airquality.FailureKind
	}{
		{"nil", nil, ""},
		{"unauthorized", fmt.Errorf("probe: %w", airquality.ErrUnauthorized), airquality.FailureUnauthorized},
		{"rate limited", airquality.ErrRateLimited, airquality.FailureRateLimited},
		{"malformed", fmt.Errorf("%w: empty list", airquality.ErrMalformedResponse), airquality.FailureMalformed},
		{"status", &airquality.StatusError{StatusCode: 503}, airquality.FailureHTTPStatus},
		{"circuit open", resilience.ErrCircuitOpen, airquality.FailureCircuitOpen},
		{"canceled", fmt.Errorf("executing request: %w", context.Canceled), airquality.FailureCanceled},
		{"deadline", context.DeadlineExceeded, airquality.FailureTimeout},
		{"net timeout", timedOut, airquality.FailureTimeout},
		{"connection refused", refused, airquality.FailureConnection},
		{"other", errors.New("boom"), airquality.FailureUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, airquality.Classify(tc.err))
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	err := &airquality.FetchError{
		Location: "Delhi",
		Attempts: 3,
		Kind:     airquality.FailureRateLimited,
		Err:      airquality.ErrRateLimited,
	}

	assert.ErrorIs(t, err, airquality.ErrRateLimited)
	assert.Contains(t, err.Error(), "Delhi")
	assert.Contains(t, err.Error(), "3 attempt(s)")
}
