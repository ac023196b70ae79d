// Package commands implements CLI command handlers for designmap.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/config"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/generate"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
	"github.com/Sumatoshi-tech/designmap/pkg/validate"
	"github.com/Sumatoshi-tech/designmap/pkg/version"
)

// stdinPath reads the export from standard input.
const stdinPath = "-"

// appOptions holds the flags shared by every command.
type appOptions struct {
	configPath string
	verbose    bool
	nested     bool
}

// app is the wired application for one command invocation.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	results   *cache.Cache[engine.Analysis]
	engine    *engine.Engine
	runner    *pipeline.Runner
	logger    *slog.Logger
	cleanup   []func(context.Context) error
}

// bootstrap loads configuration and wires telemetry, the result cache, the
// engine and the pipeline runner with its external collaborators.
func bootstrap(ctx context.Context, opts *appOptions, mode observability.AppMode) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.nested {
		cfg.Pipeline.IncludeNested = true
	}

	obsCfg := cfg.ObservabilityConfig(mode, version.Version)
	if opts.verbose {
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	application := &app{cfg: cfg, providers: providers, logger: providers.Logger}
	application.cleanup = append(application.cleanup, providers.Shutdown)

	err = application.wire(ctx)
	if err != nil {
		return nil, errors.Join(err, application.close(context.WithoutCancel(ctx)))
	}

	return application, nil
}

func (application *app) wire(ctx context.Context) error {
	cfg := application.cfg

	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	results, err := cache.New[engine.Analysis](store,
		cache.WithFrontSize(cfg.Cache.FrontSize),
		cache.WithLogger(application.logger),
	)
	if err != nil {
		return errors.Join(fmt.Errorf("create cache: %w", err), store.Close())
	}

	application.results = results
	application.cleanup = append(application.cleanup, func(context.Context) error { return results.Close() })

	registration, err := observability.RegisterCacheStats(application.providers.Meter, results.Stats)
	if err != nil {
		return err
	}

	application.cleanup = append(application.cleanup, func(context.Context) error { return registration.Unregister() })

	rules, err := cfg.LoadHeuristics()
	if err != nil {
		return err
	}

	schemas, err := cfg.LoadSchemas()
	if err != nil {
		return err
	}

	application.engine = engine.New(results,
		engine.WithHeuristics(rules),
		engine.WithSchemas(schemas),
		engine.WithLogger(application.logger),
	)

	runnerOpts, err := application.collaborators(ctx)
	if err != nil {
		return err
	}

	application.runner = pipeline.NewRunner(application.engine, cfg.Pipeline, runnerOpts...)

	return nil
}

// collaborators builds the runner options for metrics and the configured
// generator and validator.
func (application *app) collaborators(ctx context.Context) ([]pipeline.Option, error) {
	cfg := application.cfg

	metrics, err := observability.NewPipelineMetrics(application.providers.Meter)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(application.logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(application.providers.Tracer),
	}

	if cfg.Generate.Enabled {
		generator, genErr := generate.NewGemini(ctx, cfg.Generate.Config)
		if genErr != nil {
			return nil, genErr
		}

		opts = append(opts, pipeline.WithGenerator(generator))
	}

	if cfg.Validate.Endpoint != "" {
		validator, valErr := validate.NewHTTPValidator(cfg.Validate, nil)
		if valErr != nil {
			return nil, valErr
		}

		opts = append(opts, pipeline.WithValidator(validator))
	}

	return opts, nil
}

// close releases resources in reverse order of acquisition.
func (application *app) close(ctx context.Context) error {
	var errs []error

	for idx := len(application.cleanup) - 1; idx >= 0; idx-- {
		errs = append(errs, application.cleanup[idx](ctx))
	}

	application.cleanup = nil

	return errors.Join(errs...)
}

// withApp bootstraps the application, runs fn and closes it. A close
// failure is logged, never returned.
func withApp(cmd *cobra.Command, opts *appOptions, mode observability.AppMode, fn func(*app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := bootstrap(ctx, opts, mode)
	if err != nil {
		return err
	}

	runErr := fn(application)

	closeErr := application.close(context.WithoutCancel(ctx))
	if closeErr != nil {
		application.logger.Warn("shutdown failed", "error", closeErr)
	}

	return runErr
}

// readExport reads the export at path, or standard input for "-".
func readExport(cmd *cobra.Command, path string) ([]byte, error) {
	if path == stdinPath {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	return data, nil
}

// loadExport reads and decodes the export at path.
func loadExport(cmd *cobra.Command, path string) (*scene.Document, error) {
	data, err := readExport(cmd, path)
	if err != nil {
		return nil, err
	}

	doc, err := scene.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return doc, nil
}
