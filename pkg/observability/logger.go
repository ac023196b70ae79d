package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"
	attrRunID   = "run_id"
	attrUnit    = "unit"
)

// TracingHandler is an [slog.Handler] that stamps records with the service
// metadata and with what the record's context knows: the active span and
// the pipeline run and unit being processed. Keys the record already sets
// are not repeated, so a log call naming its unit explicitly wins.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner. Service attributes are attached up front so
// they stay at the top level under later WithGroup calls.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	return &TracingHandler{inner: inner.WithAttrs(serviceAttrs(service, env, appMode))}
}

func serviceAttrs(service, env string, appMode AppMode) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return attrs
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle stamps the context attributes, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	stamped := contextAttrs(ctx)

	if len(stamped) > 0 {
		present := make(map[string]bool, record.NumAttrs())

		record.Attrs(func(attr slog.Attr) bool {
			present[attr.Key] = true

			return true
		})

		for _, attr := range stamped {
			if !present[attr.Key] {
				record.AddAttrs(attr)
			}
		}
	}

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// contextAttrs lists the attributes ctx contributes to a record.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		attrs = append(attrs,
			slog.String(attrTraceID, spanCtx.TraceID().String()),
			slog.String(attrSpanID, spanCtx.SpanID().String()),
		)
	}

	if runID := pipeline.RunIDFromContext(ctx); runID != "" {
		attrs = append(attrs, slog.String(attrRunID, runID))
	}

	if unitID := pipeline.UnitIDFromContext(ctx); unitID != "" {
		attrs = append(attrs, slog.String(attrUnit, unitID))
	}

	return attrs
}

// WithAttrs implements [slog.Handler].
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: th.inner.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}
