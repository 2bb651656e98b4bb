package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/status"
)

const instrumentationName = "github.com/breatheroute/aqcollect/internal/worker"

// Metrics holds the OpenTelemetry instruments for collection runs.
type Metrics struct {
	runsTotal         metric.Int64Counter
	runDuration       metric.Float64Histogram
	readingsCollected metric.Int64Counter
	fetchFailures     metric.Int64Counter
	validationErrors  metric.Int64Counter
	datasetRows       metric.Int64Gauge
}

// NewMetrics creates the collection instruments on the given meter.
// A nil meter uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	runsTotal, err := meter.Int64Counter(
		"aqcollect.runs.total",
		metric.WithDescription("Total number of collection runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"aqcollect.run.duration",
		metric.WithDescription("Duration of collection runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	readingsCollected, err := meter.Int64Counter(
		"aqcollect.readings.collected",
		metric.WithDescription("Validated readings collected per location"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"aqcollect.fetch.failures",
		metric.WithDescription("Terminal fetch failures by kind"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	validationErrors, err := meter.Int64Counter(
		"aqcollect.validation.errors",
		metric.WithDescription("Readings rejected by validation"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return nil, err
	}

	datasetRows, err := meter.Int64Gauge(
		"aqcollect.dataset.rows",
		metric.WithDescription("Rows in the historical dataset after the last write"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runsTotal:         runsTotal,
		runDuration:       runDuration,
		readingsCollected: readingsCollected,
		fetchFailures:     fetchFailures,
		validationErrors:  validationErrors,
		datasetRows:       datasetRows,
	}, nil
}

// RecordRun records the outcome and duration of a run.
func (m *Metrics) RecordRun(ctx context.Context, outcome status.Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(outcome)))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReading records a validated reading for a location.
func (m *Metrics) RecordReading(ctx context.Context, location string) {
	if m == nil {
		return
	}
	m.readingsCollected.Add(ctx, 1, metric.WithAttributes(attribute.String("location", location)))
}

// RecordFetchFailure records a terminal fetch failure.
func (m *Metrics) RecordFetchFailure(ctx context.Context, location string, kind airquality.FailureKind) {
	if m == nil {
		return
	}
	m.fetchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("location", location),
		attribute.String("kind", string(kind)),
	))
}

// RecordValidationError records a reading rejected by validation.
func (m *Metrics) RecordValidationError(ctx context.Context, location, field string) {
	if m == nil {
		return
	}
	m.validationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("location", location),
		attribute.String("field", field),
	))
}

// RecordDatasetRows records the dataset size after a successful write.
func (m *Metrics) RecordDatasetRows(ctx context.Context, rows int) {
	if m == nil {
		return
	}
	m.datasetRows.Record(ctx, int64(rows))
}
