// Package server exposes the classifier and the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/designmap/pkg/config"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Route paths.
const (
	PathClassify  = "/v1/classify"
	PathRuns      = "/v1/runs"
	PathRun       = "/v1/runs/{id}"
	PathRunStream = "/v1/runs/stream"
	PathHealth    = "/healthz"
	PathReady     = "/readyz"
	PathMetrics   = "/metrics"
)

// DefaultRunHistory is the number of finished batches kept for GET /v1/runs/{id}.
const DefaultRunHistory = 128

const (
	defaultMaxBody  = 32 << 20
	shutdownTimeout = 10 * time.Second
	nestedParam     = "nested"
)

// ErrRunNotFound is reported when a run id is unknown or was evicted.
var ErrRunNotFound = errors.New("run not found")

// ClassifyResponse is the body of a successful POST /v1/classify.
type ClassifyResponse struct {
	Root    engine.RootRecord `json:"root"`
	Records []engine.Record   `json:"records"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) { server.logger = logger }
}

// WithTracer sets the tracer used by the HTTP middleware.
func WithTracer(tracer trace.Tracer) Option {
	return func(server *Server) { server.tracer = tracer }
}

// WithREDMetrics records request rate, errors and duration per route.
func WithREDMetrics(red *observability.REDMetrics) Option {
	return func(server *Server) { server.red = red }
}

// WithMetricsHandler mounts handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(server *Server) { server.metrics = handler }
}

// WithReadyChecks adds readiness checks served at /readyz.
func WithReadyChecks(checks ...observability.ReadyCheck) Option {
	return func(server *Server) { server.ready = append(server.ready, checks...) }
}

// WithMaxBody limits request bodies and stream messages to size bytes.
func WithMaxBody(size int64) Option {
	return func(server *Server) { server.maxBody = size }
}

// WithNested makes classify include nested instances unless the request
// overrides it with ?nested=.
func WithNested(nested bool) Option {
	return func(server *Server) { server.nested = nested }
}

// WithRunHistory sets how many finished batches are kept for lookup.
func WithRunHistory(size int) Option {
	return func(server *Server) { server.historySize = size }
}

// Server serves the designmap HTTP API.
type Server struct {
	engine      *engine.Engine
	runner      *pipeline.Runner
	runs        *lru.Cache[string, *pipeline.Batch]
	logger      *slog.Logger
	tracer      trace.Tracer
	red         *observability.REDMetrics
	metrics     http.Handler
	ready       []observability.ReadyCheck
	maxBody     int64
	historySize int
	nested      bool
}

// New creates a Server over eng and runner.
func New(eng *engine.Engine, runner *pipeline.Runner, opts ...Option) (*Server, error) {
	server := &Server{
		engine:      eng,
		runner:      runner,
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("designmap"),
		maxBody:     defaultMaxBody,
		historySize: DefaultRunHistory,
	}

	for _, opt := range opts {
		opt(server)
	}

	runs, err := lru.New[string, *pipeline.Batch](server.historySize)
	if err != nil {
		return nil, fmt.Errorf("create run history: %w", err)
	}

	server.runs = runs

	return server, nil
}

// Handler returns the routed, instrumented HTTP handler.
func (server *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(observability.HTTPMiddleware(server.tracer, server.red))

	router.Method(http.MethodGet, PathHealth, observability.HealthHandler())
	router.Method(http.MethodGet, PathReady, observability.ReadyHandler(server.ready...))

	if server.metrics != nil {
		router.Method(http.MethodGet, PathMetrics, server.metrics)
	}

	router.Post(PathClassify, server.handleClassify)
	router.Post(PathRuns, server.handleRun)
	router.Get(PathRunStream, server.handleRunStream)
	router.Get(PathRun, server.handleGetRun)

	return router
}

// ListenAndServe serves on cfg.Addr() until ctx is canceled, then shuts
// down gracefully.
func (server *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)

	go func() {
		server.logger.InfoContext(ctx, "http server listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve %s: %w", httpServer.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	server.logger.InfoContext(ctx, "http server shutting down")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// Run returns a finished batch by run id.
func (server *Server) Run(runID string) (*pipeline.Batch, error) {
	batch, ok := server.runs.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return batch, nil
}

func (server *Server) handleClassify(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	nested := server.nested

	if raw := request.URL.Query().Get(nestedParam); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(ctx, writer, http.StatusBadRequest, fmt.Errorf("invalid %s parameter: %w", nestedParam, err))

			return
		}

		nested = parsed
	}

	doc, ok := server.decodeExport(writer, request)
	if !ok {
		return
	}

	records, err := server.engine.AnalyzeDocument(ctx, doc, nested)
	if err != nil {
		server.logger.ErrorContext(ctx, "classify failed", "error", err)
		writeError(ctx, writer, http.StatusInternalServerError, err)

		return
	}

	observability.CountRecords(ctx, records)
	writeJSON(ctx, writer, http.StatusOK, ClassifyResponse{Root: server.engine.ClassifyRoot(doc), Records: records})
}

func (server *Server) handleRun(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	doc, ok := server.decodeExport(writer, request)
	if !ok {
		return
	}

	batch, err := server.runner.Run(ctx, doc)
	if batch != nil {
		server.runs.Add(batch.RunID, batch)
		observability.CountBatch(ctx, batch)
	}

	switch {
	case errors.Is(err, pipeline.ErrNoUnits):
		writeError(ctx, writer, http.StatusUnprocessableEntity, err)
	case err != nil && batch != nil:
		server.logger.ErrorContext(ctx, "batch halted", "run_id", batch.RunID, "error", err)
		writeJSON(ctx, writer, http.StatusInternalServerError, batch)
	case err != nil:
		writeError(ctx, writer, http.StatusInternalServerError, err)
	default:
		writeJSON(ctx, writer, http.StatusOK, batch)
	}
}

func (server *Server) handleGetRun(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	batch, err := server.Run(chi.URLParam(request, "id"))
	if err != nil {
		writeError(ctx, writer, http.StatusNotFound, err)

		return
	}

	writeJSON(ctx, writer, http.StatusOK, batch)
}

// decodeExport reads and decodes the request body, writing the error
// response itself when it fails.
func (server *Server) decodeExport(writer http.ResponseWriter, request *http.Request) (*scene.Document, bool) {
	ctx := request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, server.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, writer, http.StatusRequestEntityTooLarge, err)

			return nil, false
		}

		writeError(ctx, writer, http.StatusBadRequest, fmt.Errorf("read body: %w", err))

		return nil, false
	}

	doc, err := scene.DecodeBytes(body)
	if err != nil {
		writeError(ctx, writer, http.StatusBadRequest, err)

		return nil, false
	}

	return doc, true
}

// writeJSON encodes value as the JSON response body.
func writeJSON(ctx context.Context, writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	encodeErr := json.NewEncoder(writer).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}

func writeError(ctx context.Context, writer http.ResponseWriter, status int, err error) {
	writeJSON(ctx, writer, status, errorResponse(err))
}

func errorResponse(err error) ErrorResponse {
	response := ErrorResponse{Error: err.Error()}

	var malformedErr *scene.MalformedExportError
	if errors.As(err, &malformedErr) {
		response.Path = malformedErr.Path
	}

	return response
}
