package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

const (
	metricRequestsTotal    = "designmap.requests.total"
	metricRequestDuration  = "designmap.request.duration.seconds"
	metricErrorsTotal      = "designmap.errors.total"
	metricInflightRequests = "designmap.inflight.requests"
	metricComponentsTotal  = "designmap.components.total"

	attrSurface       = "surface"
	attrOperation     = "operation"
	attrStatus        = "status"
	attrComponentType = "component.type"

	// StatusOK and StatusError are the request outcomes RED metrics record.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 600s: a cached classification
// returns in milliseconds, a full run with generation takes minutes.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Surface is the entry point a request arrived through.
type Surface string

// Request surfaces.
const (
	SurfaceHTTP Surface = "http"
	SurfaceMCP  Surface = "mcp"
)

// REDMetrics measures designmap requests: rate, errors and duration per
// surface and operation, plus the component types each operation classified.
// An operation is an HTTP route pattern ("POST /v1/classify") or an MCP tool
// name ("designmap_run").
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
	componentsTotal  metric.Int64Counter
}

// NewREDMetrics creates the request instruments from mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	requests, err := mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Requests served, by surface, operation and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	failures, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Requests that failed, by surface and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Requests in progress, by surface"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightRequests, err)
	}

	components, err := mt.Int64Counter(metricComponentsTotal,
		metric.WithDescription("Component instances classified, by operation and component type"),
		metric.WithUnit("{component}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricComponentsTotal, err)
	}

	return &REDMetrics{
		requestsTotal:    requests,
		requestDuration:  duration,
		errorsTotal:      failures,
		inflightRequests: inflight,
		componentsTotal:  components,
	}, nil
}

// Measurement is one request in progress.
type Measurement struct {
	red     *REDMetrics
	surface Surface
	started time.Time
	tally   *componentTally
}

// Start counts a request on surface as in flight. The returned context
// collects the component types passed to [CountComponents] until End.
// Safe on a nil receiver: the context is returned unchanged and the
// Measurement is nil.
func (red *REDMetrics) Start(ctx context.Context, surface Surface) (context.Context, *Measurement) {
	if red == nil {
		return ctx, nil
	}

	red.inflightRequests.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSurface, string(surface))))

	tally := &componentTally{counts: make(map[component.Type]int64)}

	return context.WithValue(ctx, tallyKey{}, tally), &Measurement{
		red:     red,
		surface: surface,
		started: time.Now(),
		tally:   tally,
	}
}

// End records the finished request under operation. The operation is given
// here because an HTTP route pattern is only known once routing is done.
// Safe on a nil receiver.
func (measurement *Measurement) End(ctx context.Context, operation, status string) {
	if measurement == nil {
		return
	}

	red := measurement.red
	surface := attribute.String(attrSurface, string(measurement.surface))
	op := attribute.String(attrOperation, operation)

	red.inflightRequests.Add(ctx, -1, metric.WithAttributes(surface))

	attrs := metric.WithAttributes(surface, op, attribute.String(attrStatus, status))
	red.requestsTotal.Add(ctx, 1, attrs)
	red.requestDuration.Record(ctx, time.Since(measurement.started).Seconds(), attrs)

	if status == StatusError {
		red.errorsTotal.Add(ctx, 1, metric.WithAttributes(surface, op))
	}

	for componentType, count := range measurement.tally.snapshot() {
		red.componentsTotal.Add(ctx, count, metric.WithAttributes(
			surface, op, attribute.String(attrComponentType, string(componentType)),
		))
	}
}

type tallyKey struct{}

// componentTally collects the component types one request classified.
type componentTally struct {
	mu     sync.Mutex
	counts map[component.Type]int64
}

func (tally *componentTally) snapshot() map[component.Type]int64 {
	tally.mu.Lock()
	defer tally.mu.Unlock()

	counts := make(map[component.Type]int64, len(tally.counts))
	for componentType, count := range tally.counts {
		counts[componentType] = count
	}

	return counts
}

// CountComponents attributes classified component types to the request
// measured in ctx. Outside a measured request it does nothing.
func CountComponents(ctx context.Context, types ...component.Type) {
	tally, ok := ctx.Value(tallyKey{}).(*componentTally)
	if !ok {
		return
	}

	tally.mu.Lock()
	defer tally.mu.Unlock()

	for _, componentType := range types {
		tally.counts[componentType]++
	}
}

// CountRecords attributes the classification of every record to the request
// measured in ctx.
func CountRecords(ctx context.Context, records []engine.Record) {
	types := make([]component.Type, 0, len(records))
	for _, record := range records {
		types = append(types, record.Classification.Type)
	}

	CountComponents(ctx, types...)
}

// CountBatch attributes the classification of every analyzed unit of batch
// to the request measured in ctx.
func CountBatch(ctx context.Context, batch *pipeline.Batch) {
	for _, unit := range batch.Ordered() {
		if unit.Record != nil {
			CountComponents(ctx, unit.Record.Classification.Type)
		}
	}
}
