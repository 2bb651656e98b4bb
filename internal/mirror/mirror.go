// Package mirror forwards the persisted dataset to external replicas.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/history"
)

// Sink replaces the entire content of an external replica with a dataset.
// Rows are written newest first with the header row included.
type Sink interface {
	Name() string
	Replace(ctx context.Context, ds *history.Dataset) error
}

// Multi fans a dataset out to several sinks. Every sink is attempted;
// failures are joined.
type Multi struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewMulti creates a fan-out sink.
func NewMulti(logger zerolog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Name returns the sink name.
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of configured sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Replace writes ds to every sink.
func (m *Multi) Replace(ctx context.Context, ds *history.Dataset) error {
	var errs []error

	for _, s := range m.sinks {
		start := time.Now()
		if err := s.Replace(ctx, ds); err != nil {
			m.logger.Warn().Err(err).Str("sink", s.Name()).Msg("mirror sink failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		m.logger.Info().
			Str("sink", s.Name()).
			Int("rows", ds.Len()).
			Dur("duration", time.Since(start)).
			Msg("mirror sink updated")
	}

	return errors.Join(errs...)
}

// Nop is a sink that does nothing.
type Nop struct{}

// Name returns the sink name.
func (Nop) Name() string { return "nop" }

// Replace does nothing.
func (Nop) Replace(context.Context, *history.Dataset) error { return nil }
