package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

// sumBy totals an Int64 sum metric per value of the key attribute.
func sumBy(t *testing.T, found *metricdata.Metrics, key string) map[string]int64 {
	t.Helper()

	require.NotNil(t, found)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", found.Name)

	totals := make(map[string]int64)

	for _, point := range sum.DataPoints {
		value, _ := point.Attributes.Value(attribute.Key(key))
		totals[value.AsString()] += point.Value
	}

	return totals
}

func TestREDMetrics_Measurement(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	requests := []struct {
		surface   observability.Surface
		operation string
		status    string
		types     []component.Type
	}{
		{observability.SurfaceHTTP, "POST /v1/classify", observability.StatusOK, []component.Type{component.Button, component.Button}},
		{observability.SurfaceHTTP, "POST /v1/classify", observability.StatusError, nil},
		{observability.SurfaceMCP, "designmap_run", observability.StatusOK, []component.Type{component.Input}},
	}

	for _, request := range requests {
		ctx, measurement := red.Start(context.Background(), request.surface)
		observability.CountComponents(ctx, request.types...)
		measurement.End(ctx, request.operation, request.status)
	}

	rm := collectMetrics(t, reader)

	tests := []struct {
		metric string
		key    string
		want   map[string]int64
	}{
		{"designmap.requests.total", "operation", map[string]int64{"POST /v1/classify": 2, "designmap_run": 1}},
		{"designmap.requests.total", "surface", map[string]int64{"http": 2, "mcp": 1}},
		{"designmap.errors.total", "operation", map[string]int64{"POST /v1/classify": 1}},
		{"designmap.components.total", "component.type", map[string]int64{"Button": 2, "Input": 1}},
		{"designmap.components.total", "operation", map[string]int64{"POST /v1/classify": 2, "designmap_run": 1}},
		{"designmap.inflight.requests", "surface", map[string]int64{"http": 0, "mcp": 0}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sumBy(t, findMetric(rm, tt.metric), tt.key), tt.metric+" by "+tt.key)
	}

	duration := findMetric(rm, "designmap.request.duration.seconds")
	require.NotNil(t, duration)

	histogram, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var count uint64
	for _, point := range histogram.DataPoints {
		count += point.Count
	}

	assert.Equal(t, uint64(3), count)
}

func TestREDMetrics_InflightUntilEnd(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	ctx, first := red.Start(context.Background(), observability.SurfaceMCP)
	_, second := red.Start(context.Background(), observability.SurfaceMCP)

	assert.Equal(t, map[string]int64{"mcp": 2},
		sumBy(t, findMetric(collectMetrics(t, reader), "designmap.inflight.requests"), "surface"))

	first.End(ctx, "designmap_run", observability.StatusOK)
	second.End(ctx, "designmap_classify", observability.StatusOK)

	assert.Equal(t, map[string]int64{"mcp": 0},
		sumBy(t, findMetric(collectMetrics(t, reader), "designmap.inflight.requests"), "surface"))
}

func TestCountComponents_OutsideMeasurement(t *testing.T) {
	t.Parallel()

	var red *observability.REDMetrics

	ctx, measurement := red.Start(context.Background(), observability.SurfaceHTTP)
	assert.Nil(t, measurement)

	assert.NotPanics(t, func() {
		observability.CountComponents(ctx, component.Button)
		observability.CountRecords(ctx, []engine.Record{{}})
		measurement.End(ctx, "POST /v1/classify", observability.StatusOK)
	})
}

func TestCountBatch_SkipsUnanalyzedUnits(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	analyzed := &engine.Record{}
	analyzed.Classification.Type = component.Card

	batch := &pipeline.Batch{
		Units: map[string]*pipeline.Unit{
			"1:1": {ID: "1:1", State: pipeline.StateDone, Record: analyzed},
			"1:2": {ID: "1:2", State: pipeline.StateCanceled},
		},
		Order: []string{"1:1", "1:2"},
	}

	ctx, measurement := red.Start(context.Background(), observability.SurfaceHTTP)
	observability.CountBatch(ctx, batch)
	measurement.End(ctx, "POST /v1/runs", observability.StatusOK)

	assert.Equal(t, map[string]int64{"Card": 1},
		sumBy(t, findMetric(collectMetrics(t, reader), "designmap.components.total"), "component.type"))
}

func TestNewREDMetrics_NoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		ctx, measurement := red.Start(context.Background(), observability.SurfaceMCP)
		observability.CountComponents(ctx, component.Button)
		measurement.End(ctx, "designmap_classify", observability.StatusOK)
	})
}
