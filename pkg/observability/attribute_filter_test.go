package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
)

// recordSpan ends one span carrying attrs behind a filter and returns the
// exported attributes.
func recordSpan(t *testing.T, logger *slog.Logger, attrs ...attribute.KeyValue) map[string]any {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(
		sdktrace.NewSimpleSpanProcessor(exporter), observability.DefaultSpanPolicy(), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "designmap.unit")
	span.SetAttributes(attrs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	exported := make(map[string]any, len(spans[0].Attributes))
	for _, kv := range spans[0].Attributes {
		exported[string(kv.Key)] = kv.Value.AsInterface()
	}

	return exported
}

func TestAttributeFilter_Policy(t *testing.T) {
	t.Parallel()

	attrs := recordSpan(t, nil,
		attribute.String("unit.id", "2:1"),
		attribute.String("component.type", "Button"),
		attribute.Int("unit.attempts", 3),
		attribute.String("error.type", "timeout"),
		attribute.String("mcp.tool", "designmap_run"),
		attribute.String("unit.name", "Checkout / Pay now"),
		attribute.String("node.characters", "4111 1111"),
		attribute.String("user.email", "alice@example.com"),
		attribute.String("export.raw", "{}"),
		attribute.String("request.body", "{}"),
		attribute.String("figma.token", "secret"),
	)

	tests := []struct {
		key  string
		want any
	}{
		{"unit.id", "2:1"},
		{"component.type", "Button"},
		{"unit.attempts", int64(3)},
		{"error.type", "timeout"},
		{"mcp.tool", "designmap_run"},
		{"unit.name", "[redacted len=18]"},
		{"node.characters", "[redacted len=9]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, attrs[tt.key], tt.key)
	}

	for _, dropped := range []string{"user.email", "export.raw", "request.body", "figma.token"} {
		assert.NotContains(t, attrs, dropped)
	}
}

func TestAttributeFilter_WarnsOncePerKey(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(
		sdktrace.NewSimpleSpanProcessor(exporter), observability.DefaultSpanPolicy(), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	for range 3 {
		_, span := tp.Tracer("test").Start(context.Background(), "op")
		span.SetAttributes(attribute.String("user.secret", "val"))
		span.End()
	}

	assert.Len(t, exporter.GetSpans(), 3)
	assert.Equal(t, 1, strings.Count(buf.String(), "user.secret"))
	assert.Contains(t, buf.String(), "dropped")
}

func TestAttributeFilter_RedactKeepsNonStrings(t *testing.T) {
	t.Parallel()

	attrs := recordSpan(t, nil, attribute.Int("node.name", 7))

	assert.Equal(t, int64(7), attrs["node.name"])
}

func TestAttributeFilter_CustomPolicy(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	policy := observability.SpanPolicy{Allowed: []string{"stage."}}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), policy, nil)),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(attribute.String("stage.name", "mapping"), attribute.String("unit.id", "1:1"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Attributes, 1)
	assert.Equal(t, attribute.Key("stage.name"), spans[0].Attributes[0].Key)
}
