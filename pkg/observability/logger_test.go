package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// logLine writes one record through a TracingHandler and decodes it.
func logLine(t *testing.T, ctx context.Context, env string, mode observability.AppMode,
	decorate func(*slog.Logger) *slog.Logger,
) map[string]any {
	t.Helper()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := decorate(slog.New(observability.NewTracingHandler(inner, "designmap", env, mode)))

	logger.InfoContext(ctx, "unit done", slog.String("unit", "2:1"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	return line
}

func TestTracingHandler_ServiceAttributes(t *testing.T) {
	t.Parallel()

	plain := func(logger *slog.Logger) *slog.Logger { return logger }

	tests := []struct {
		name    string
		env     string
		mode    observability.AppMode
		wantEnv any
	}{
		{"cli without env", "", observability.ModeCLI, nil},
		{"server in production", "production", observability.ModeServe, "production"},
		{"mcp in staging", "staging", observability.ModeMCP, "staging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			line := logLine(t, context.Background(), tt.env, tt.mode, plain)

			assert.Equal(t, "designmap", line["service"])
			assert.Equal(t, string(tt.mode), line["mode"])
			assert.Equal(t, tt.wantEnv, line["env"])
			assert.Equal(t, "2:1", line["unit"])
			assert.NotContains(t, line, "trace_id")
		})
	}
}

func TestTracingHandler_ActiveSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	ctx, span := tp.Tracer("test").Start(context.Background(), "designmap.unit")
	line := logLine(t, ctx, "", observability.ModeCLI, func(logger *slog.Logger) *slog.Logger { return logger })
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	assert.Equal(t, spans[0].SpanContext.TraceID().String(), line["trace_id"])
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), line["span_id"])
}

func TestTracingHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	line := logLine(t, context.Background(), "", observability.ModeServe, func(logger *slog.Logger) *slog.Logger {
		return logger.With(slog.String("run_id", "r-1")).WithGroup("pipeline")
	})

	assert.Equal(t, "designmap", line["service"])
	assert.Equal(t, "r-1", line["run_id"])

	group, ok := line["pipeline"].(map[string]any)
	require.True(t, ok, "grouped attributes must nest")
	assert.Equal(t, "2:1", group["unit"])
}

func TestTracingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := observability.NewTracingHandler(inner, "designmap", "", observability.ModeCLI)

	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestTracingHandler_PipelineContext(t *testing.T) {
	t.Parallel()

	ctx := pipeline.ContextWithUnitID(pipeline.ContextWithRunID(context.Background(), "r-7"), "9:9")

	var buf bytes.Buffer

	logger := slog.New(observability.NewTracingHandler(slog.NewJSONHandler(&buf, nil), "designmap", "", observability.ModeCLI))
	logger.InfoContext(ctx, "unit retried")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "r-7", line["run_id"])
	assert.Equal(t, "9:9", line["unit"])
}

func TestTracingHandler_ExplicitKeyWins(t *testing.T) {
	t.Parallel()

	ctx := pipeline.ContextWithUnitID(context.Background(), "9:9")
	line := logLine(t, ctx, "", observability.ModeCLI, func(logger *slog.Logger) *slog.Logger { return logger })

	assert.Equal(t, "2:1", line["unit"])
	assert.NotContains(t, line, "run_id")
}

func TestTracingHandler_RunnerStampsRunID(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile(filepath.Join("..", "scene", "testdata", "checkout.json"))
	require.NoError(t, err)

	doc, err := scene.DecodeBytes(data)
	require.NoError(t, err)

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, "designmap", "", observability.ModeCLI))

	batch, err := pipeline.NewRunner(engine.New(nil), pipeline.Config{Workers: 2}, pipeline.WithLogger(logger)).
		Run(context.Background(), doc)
	require.NoError(t, err)

	done := 0

	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))

		assert.Equal(t, batch.RunID, line["run_id"], line["msg"])

		if line["msg"] == "unit done" {
			done++

			assert.Contains(t, batch.Units, line["unit"])
		}
	}

	assert.Equal(t, len(batch.Units), done)
}
