package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

func TestPipelineMetrics_RecordUnit(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	unit := &pipeline.Unit{
		ID:     "1:1",
		State:  pipeline.StateDone,
		Record: &engine.Record{Cached: true},
		History: []pipeline.Transition{
			{From: pipeline.StatePending, To: pipeline.StateIngesting, At: start},
			{From: pipeline.StateIngesting, To: pipeline.StateAwaitingExternalGeneration, At: start.Add(time.Second)},
			{From: pipeline.StateAwaitingExternalGeneration, To: pipeline.StateDone, At: start.Add(3 * time.Second)},
		},
	}

	ctx := context.Background()
	metrics.RecordUnit(ctx, unit)
	metrics.RecordRetry(ctx, pipeline.StateAwaitingExternalGeneration)

	rm := collectMetrics(t, reader)

	units := findMetric(rm, "designmap.pipeline.units.total")
	require.NotNil(t, units)

	sum, ok := units.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	state, found := sum.DataPoints[0].Attributes.Value("state")
	require.True(t, found)
	assert.Equal(t, "Done", state.AsString())

	stages := findMetric(rm, "designmap.pipeline.stage.duration.seconds")
	require.NotNil(t, stages)

	histogram, ok := stages.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, histogram.DataPoints, 2)

	assert.NotNil(t, findMetric(rm, "designmap.pipeline.unit.duration.seconds"))
	assert.NotNil(t, findMetric(rm, "designmap.pipeline.retries.total"))
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var metrics *observability.PipelineMetrics

	assert.NotPanics(t, func() {
		metrics.RecordUnit(context.Background(), &pipeline.Unit{})
		metrics.RecordRetry(context.Background(), pipeline.StateRetrying)
	})
}

func TestRegisterCacheStats(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	registration, err := observability.RegisterCacheStats(mp.Meter("test"), func() cache.Stats {
		return cache.Stats{Hits: 7, Misses: 3, Computes: 3, Conflicts: 1}
	})
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, registration.Unregister()) })

	rm := collectMetrics(t, reader)

	tests := map[string]int64{
		"designmap.cache.hits.total":      7,
		"designmap.cache.misses.total":    3,
		"designmap.cache.computes.total":  3,
		"designmap.cache.conflicts.total": 1,
	}

	for name, want := range tests {
		found := findMetric(rm, name)
		require.NotNil(t, found, name)

		sum, ok := found.Data.(metricdata.Sum[int64])
		require.True(t, ok, name)
		require.Len(t, sum.DataPoints, 1, name)
		assert.Equal(t, want, sum.DataPoints[0].Value, name)
	}
}
