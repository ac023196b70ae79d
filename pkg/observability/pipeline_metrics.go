package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

const (
	metricUnitsTotal        = "designmap.pipeline.units.total"
	metricUnitDuration      = "designmap.pipeline.unit.duration.seconds"
	metricStageDuration     = "designmap.pipeline.stage.duration.seconds"
	metricRetriesTotal      = "designmap.pipeline.retries.total"
	metricCacheHitsTotal    = "designmap.cache.hits.total"
	metricCacheMissesTotal  = "designmap.cache.misses.total"
	metricCacheComputeTotal = "designmap.cache.computes.total"
	metricCacheConflicts    = "designmap.cache.conflicts.total"

	attrState  = "state"
	attrStage  = "stage"
	attrCached = "cached"
)

// PipelineMetrics implements [pipeline.Metrics] with OTel instruments.
type PipelineMetrics struct {
	unitsTotal    metric.Int64Counter
	unitDuration  metric.Float64Histogram
	stageDuration metric.Float64Histogram
	retriesTotal  metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments from mt.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	units, err := mt.Int64Counter(metricUnitsTotal,
		metric.WithDescription("Units that reached a terminal state, by state"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricUnitsTotal, err)
	}

	unitDur, err := mt.Float64Histogram(metricUnitDuration,
		metric.WithDescription("Time from ingestion to the terminal state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricUnitDuration, err)
	}

	stageDur, err := mt.Float64Histogram(metricStageDuration,
		metric.WithDescription("Time a unit spent in each state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageDuration, err)
	}

	retries, err := mt.Int64Counter(metricRetriesTotal,
		metric.WithDescription("Retried external calls, by stage"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRetriesTotal, err)
	}

	return &PipelineMetrics{
		unitsTotal:    units,
		unitDuration:  unitDur,
		stageDuration: stageDur,
		retriesTotal:  retries,
	}, nil
}

// RecordUnit implements [pipeline.Metrics]. Safe on a nil receiver.
func (pm *PipelineMetrics) RecordUnit(ctx context.Context, unit *pipeline.Unit) {
	if pm == nil {
		return
	}

	cached := unit.Record != nil && unit.Record.Cached

	pm.unitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrState, string(unit.State)),
		attribute.Bool(attrCached, cached),
	))

	if len(unit.History) > 0 {
		pm.unitDuration.Record(ctx, unit.Duration().Seconds(),
			metric.WithAttributes(attribute.String(attrState, string(unit.State))))
	}

	for state, spent := range unit.StageDurations() {
		pm.stageDuration.Record(ctx, spent.Seconds(), metric.WithAttributes(attribute.String(attrStage, string(state))))
	}
}

// RecordRetry implements [pipeline.Metrics]. Safe on a nil receiver.
func (pm *PipelineMetrics) RecordRetry(ctx context.Context, stage pipeline.State) {
	if pm == nil {
		return
	}

	pm.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStage, string(stage))))
}

// RegisterCacheStats exposes the cumulative counters returned by stats as
// observable counters. The returned registration must be unregistered when
// the cache is closed.
func RegisterCacheStats(mt metric.Meter, stats func() cache.Stats) (metric.Registration, error) {
	hits, err := mt.Int64ObservableCounter(metricCacheHitsTotal,
		metric.WithDescription("Result cache hits"), metric.WithUnit("{hit}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64ObservableCounter(metricCacheMissesTotal,
		metric.WithDescription("Result cache misses"), metric.WithUnit("{miss}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	computes, err := mt.Int64ObservableCounter(metricCacheComputeTotal,
		metric.WithDescription("Analyses computed on a miss"), metric.WithUnit("{compute}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheComputeTotal, err)
	}

	conflicts, err := mt.Int64ObservableCounter(metricCacheConflicts,
		metric.WithDescription("Consistency violations detected on write"), metric.WithUnit("{conflict}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheConflicts, err)
	}

	registration, err := mt.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		current := stats()

		observer.ObserveInt64(hits, current.Hits)
		observer.ObserveInt64(misses, current.Misses)
		observer.ObserveInt64(computes, current.Computes)
		observer.ObserveInt64(conflicts, current.Conflicts)

		return nil
	}, hits, misses, computes, conflicts)
	if err != nil {
		return nil, fmt.Errorf("register cache callback: %w", err)
	}

	return registration, nil
}
