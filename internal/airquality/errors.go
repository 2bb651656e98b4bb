package airquality

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/breatheroute/aqcollect/internal/provider/resilience"
)

// Provider errors.
var (
	// ErrUnauthorized is returned when the upstream rejects the API credential.
	// It is never retried.
	ErrUnauthorized = errors.New("upstream rejected API key")

	// ErrRateLimited is returned when the upstream answers HTTP 429.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrMalformedResponse is returned when the payload lacks the expected structure.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError is returned for unexpected upstream HTTP status codes.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// FailureKind classifies why a fetch failed.
type FailureKind string

const (
	FailureTimeout      FailureKind = "timeout"
	FailureConnection   FailureKind = "connection"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureMalformed    FailureKind = "malformed"
	FailureHTTPStatus   FailureKind = "http_status"
	FailureCircuitOpen  FailureKind = "circuit_open"
	FailureCanceled     FailureKind = "canceled"
	FailureUnknown      FailureKind = "unknown"
)

// Classify maps an error returned by a provider to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, resilience.ErrCircuitOpen):
		return FailureCircuitOpen
	case errors.As(err, &statusErr):
		return FailureHTTPStatus
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureConnection
	default:
		return FailureUnknown
	}
}

// FetchError is the terminal failure of fetching one location.
type FetchError struct {
	Location string
	Attempts int
	Kind     FailureKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s failed after %d attempt(s) (%s): %v", e.Location, e.Attempts, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
