package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/status"
	"github.com/breatheroute/aqcollect/internal/worker"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := worker.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRun(ctx, status.OutcomeSuccess, 2*time.Second)
	metrics.RecordRun(ctx, status.OutcomeFailed, time.Second)
	metrics.RecordReading(ctx, "LocationA")
	metrics.RecordReading(ctx, "LocationB")
	metrics.RecordFetchFailure(ctx, "LocationB", airquality.FailureTimeout)
	metrics.RecordValidationError(ctx, "LocationA", "aqi")
	metrics.RecordDatasetRows(ctx, 42)

	data := collect(t, reader)

	assert.Equal(t, int64(2), sumOf(t, data["aqcollect.runs.total"]))
	assert.Equal(t, int64(2), sumOf(t, data["aqcollect.readings.collected"]))
	assert.Equal(t, int64(1), sumOf(t, data["aqcollect.fetch.failures"]))
	assert.Equal(t, int64(1), sumOf(t, data["aqcollect.validation.errors"]))

	hist, ok := data["aqcollect.run.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	gauge, ok := data["aqcollect.dataset.rows"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(42), gauge.DataPoints[0].Value)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *worker.Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordRun(ctx, status.OutcomeSuccess, time.Second)
		metrics.RecordReading(ctx, "LocationA")
		metrics.RecordFetchFailure(ctx, "LocationA", airquality.FailureTimeout)
		metrics.RecordValidationError(ctx, "LocationA", "aqi")
		metrics.RecordDatasetRows(ctx, 1)
	})
}
