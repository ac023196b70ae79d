package observability

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter wraps [http.ResponseWriter] to capture the status code.
type statusWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

// WriteHeader captures the status code before delegating to the wrapped writer.
func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}

	n, err := sw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// errHijackUnsupported is returned when the wrapped writer cannot be hijacked.
var errHijackUnsupported = errors.New("response writer does not support hijacking")

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Hijack lets websocket upgrades take over the connection.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errHijackUnsupported
	}

	if !sw.written {
		sw.statusCode = http.StatusSwitchingProtocols
		sw.written = true
	}

	return hijacker.Hijack()
}

// HTTPMiddleware creates a server span per request and records RED metrics
// when red is non-nil. Span names and the operation attribute use the chi
// route pattern ("POST /v1/runs"), falling back to the raw path.
func HTTPMiddleware(tracer trace.Tracer, red *REDMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
			parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

			ctx, span := tracer.Start(parentCtx, hr.Method+" "+hr.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(hr.Method),
					attribute.String("http.target", hr.URL.Path),
				),
			)
			defer span.End()

			op := hr.Method + " " + hr.URL.Path

			ctx, measurement := red.Start(ctx, SurfaceHTTP)

			sw := &statusWriter{ResponseWriter: rw, statusCode: http.StatusOK}
			next.ServeHTTP(sw, hr.WithContext(ctx))

			if routeCtx := chi.RouteContext(ctx); routeCtx != nil {
				if pattern := routeCtx.RoutePattern(); pattern != "" {
					op = hr.Method + " " + pattern
					span.SetName(op)
				}
			}

			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.statusCode))

			status := StatusOK
			if sw.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.statusCode))

				status = StatusError
			}

			measurement.End(ctx, op, status)
		})
	}
}
