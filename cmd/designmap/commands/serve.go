package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/server"
)

// readyCheckKey is looked up in the cache store by the readiness check.
const readyCheckKey = "readyz-check"

// NewServeCommand creates the serve command.
func NewServeCommand(opts *appOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve classification and pipeline runs over HTTP:
  POST /v1/classify      classify an export
  POST /v1/runs          run the pipeline, returning the batch
  GET  /v1/runs/{id}     fetch a recent batch
  GET  /v1/runs/stream   websocket streaming unit transitions
  GET  /healthz, /readyz, /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, observability.ModeServe, func(application *app) error {
				if port > 0 {
					application.cfg.Server.Port = port
				}

				return serve(cmd.Context(), application)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")

	return cmd
}

func serve(ctx context.Context, application *app) error {
	maxBody, err := application.cfg.Server.MaxBodyBytes()
	if err != nil {
		return err
	}

	red, err := observability.NewREDMetrics(application.providers.Meter)
	if err != nil {
		return fmt.Errorf("create RED metrics: %w", err)
	}

	results := application.results

	srv, err := server.New(application.engine, application.runner,
		server.WithLogger(application.logger),
		server.WithTracer(application.providers.Tracer),
		server.WithREDMetrics(red),
		server.WithMetricsHandler(application.providers.MetricsHandler),
		server.WithMaxBody(maxBody),
		server.WithNested(application.cfg.Pipeline.IncludeNested),
		server.WithReadyChecks(func(checkCtx context.Context) error {
			return results.Ping(checkCtx, readyCheckKey)
		}),
	)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx, application.cfg.Server)
}
