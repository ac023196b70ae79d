package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Default configuration values.
const (
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
	DefaultMaxElapsed      = 5 * time.Minute
	DefaultCallTimeout     = 2 * time.Minute
)

// Config configures a Runner.
type Config struct {
	// Workers is the number of units processed concurrently. Zero means
	// one worker per CPU.
	Workers int `mapstructure:"workers"`

	// IncludeNested makes every INSTANCE its own unit instead of only the
	// outermost ones.
	IncludeNested bool `mapstructure:"include_nested"`

	// MaxAttempts bounds the attempts of one external call, the first
	// included.
	MaxAttempts uint `mapstructure:"max_attempts"`

	// InitialInterval is the first retry wait.
	InitialInterval time.Duration `mapstructure:"initial_interval"`

	// MaxInterval caps a single retry wait.
	MaxInterval time.Duration `mapstructure:"max_interval"`

	// MaxElapsed caps the time spent retrying one external call.
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`

	// CallTimeout bounds one external call attempt. A timed-out attempt is
	// transient. Zero disables the per-call timeout.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsed:      DefaultMaxElapsed,
		CallTimeout:     DefaultCallTimeout,
	}
}

// Metrics receives pipeline measurements.
type Metrics interface {
	// RecordUnit is called once per unit when it reaches a terminal state.
	RecordUnit(ctx context.Context, unit *Unit)
	// RecordRetry is called before each retry wait.
	RecordRetry(ctx context.Context, stage State)
}

type nopMetrics struct{}

func (nopMetrics) RecordUnit(context.Context, *Unit) {}
func (nopMetrics) RecordRetry(context.Context, State) {}

// TransitionObserver is called after every recorded unit transition. It is
// called from worker goroutines and must be safe for concurrent use.
type TransitionObserver func(unitID string, transition Transition)

// Option configures a Runner.
type Option func(*Runner)

// WithGenerator sets the external code generator. Without one the
// generation stage is skipped.
func WithGenerator(generator Generator) Option {
	return func(runner *Runner) { runner.generator = generator }
}

// WithValidator sets the external validator. Without one the validation
// stage is skipped.
func WithValidator(validator Validator) Option {
	return func(runner *Runner) { runner.validator = validator }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(runner *Runner) { runner.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(runner *Runner) { runner.metrics = metrics }
}

// WithTracer sets the tracer that records one span per unit.
func WithTracer(tracer trace.Tracer) Option {
	return func(runner *Runner) { runner.tracer = tracer }
}

// WithTransitionObserver streams unit transitions as they happen.
func WithTransitionObserver(observe TransitionObserver) Option {
	return func(runner *Runner) { runner.observe = observe }
}

// WithClock sets the clock used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(runner *Runner) { runner.now = now }
}

// Runner processes batches of units. A Runner may run several batches, one
// after another or concurrently.
type Runner struct {
	engine    *engine.Engine
	generator Generator
	validator Validator
	cfg       Config
	logger    *slog.Logger
	metrics   Metrics
	tracer    trace.Tracer
	observe   TransitionObserver
	now       func() time.Time
}

// NewRunner creates a Runner over eng.
func NewRunner(eng *engine.Engine, cfg Config, opts ...Option) *Runner {
	defaults := DefaultConfig()

	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}

	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}

	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = defaults.MaxElapsed
	}

	runner := &Runner{
		engine:  eng,
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: nopMetrics{},
		tracer:  noop.NewTracerProvider().Tracer("designmap/pipeline"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Observed returns a copy of the runner that reports transitions to
// observe. The copy shares the engine, collaborators and metrics.
func (runner *Runner) Observed(observe TransitionObserver) *Runner {
	observed := *runner
	observed.observe = observe

	return &observed
}

// Batch is the result of one run. Units are keyed by unit id; Order keeps
// the document order for reporting only.
type Batch struct {
	RunID    string             `json:"runId"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
	Root     *engine.RootRecord `json:"root,omitempty"`
	Units    map[string]*Unit   `json:"units"`
	Order    []string           `json:"order"`
	Counts   map[State]int      `json:"counts"`
	Error    string             `json:"error,omitempty"`

	// Err is the fatal error that halted the batch, if any.
	Err error `json:"-"`
}

// Duration returns the wall time of the run.
func (batch *Batch) Duration() time.Duration {
	return batch.Finished.Sub(batch.Started)
}

// Ordered returns the units in document order.
func (batch *Batch) Ordered() []*Unit {
	ordered := make([]*Unit, 0, len(batch.Order))
	for _, id := range batch.Order {
		ordered = append(ordered, batch.Units[id])
	}

	return ordered
}

// InState returns the units in state, in document order.
func (batch *Batch) InState(state State) []*Unit {
	var matched []*Unit

	for _, unit := range batch.Ordered() {
		if unit.State == state {
			matched = append(matched, unit)
		}
	}

	return matched
}

// Run processes every unit of doc. The returned error is non-nil only for a
// fatal batch error such as a cache consistency violation; per-unit failures
// are reported in the batch.
func (runner *Runner) Run(ctx context.Context, doc *scene.Document) (*Batch, error) {
	nodes := engine.Units(doc.Root, runner.cfg.IncludeNested)
	if len(nodes) == 0 {
		return nil, ErrNoUnits
	}

	root := runner.engine.ClassifyRoot(doc)

	batch, err := runner.RunNodes(ctx, nodes)
	if batch != nil {
		batch.Root = &root
	}

	return batch, err
}

// RunNodes processes one unit per node.
func (runner *Runner) RunNodes(ctx context.Context, nodes []*scene.Node) (*Batch, error) {
	batch := &Batch{
		RunID:   uuid.NewString(),
		Started: runner.now(),
		Units:   make(map[string]*Unit, len(nodes)),
		Order:   make([]string, 0, len(nodes)),
	}

	for _, targetNode := range nodes {
		id := uniqueID(batch.Units, targetNode.ID)
		batch.Units[id] = newUnit(id, targetNode, runner.now, runner.observe)
		batch.Order = append(batch.Order, id)
	}

	ctx = ContextWithRunID(ctx, batch.RunID)

	runner.logger.InfoContext(ctx, "batch started",
		"run_id", batch.RunID, "units", len(nodes), "workers", runner.cfg.Workers)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	state := &batchRun{runner: runner, cancel: cancel}

	jobs := make(chan *Unit)

	var wg sync.WaitGroup

	for range min(runner.cfg.Workers, len(nodes)) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for unit := range jobs {
				state.process(runCtx, unit)
				runner.metrics.RecordUnit(runCtx, unit)
			}
		}()
	}

	runner.dispatch(runCtx, batch, jobs)
	close(jobs)
	wg.Wait()

	for _, id := range batch.Order {
		unit := batch.Units[id]
		if unit.State == StatePending {
			unit.cancel(cancellation(runCtx))
			runner.metrics.RecordUnit(ctx, unit)
		}
	}

	batch.Finished = runner.now()
	batch.Counts = countStates(batch)
	batch.Err = state.fatal()

	if batch.Err != nil {
		batch.Error = batch.Err.Error()
	}

	runner.logger.InfoContext(ctx, "batch finished",
		"run_id", batch.RunID,
		"done", batch.Counts[StateDone],
		"failed", batch.Counts[StateFailed],
		"canceled", batch.Counts[StateCanceled],
		"duration", batch.Duration())

	return batch, batch.Err
}

func (runner *Runner) dispatch(ctx context.Context, batch *Batch, jobs chan<- *Unit) {
	for _, id := range batch.Order {
		if ctx.Err() != nil {
			return
		}

		select {
		case jobs <- batch.Units[id]:
		case <-ctx.Done():
			return
		}
	}
}

// batchRun is the state shared by the workers of one run.
type batchRun struct {
	runner *Runner
	cancel context.CancelCauseFunc

	haltOnce sync.Once
	haltErr  error
	mu       sync.Mutex
}

func (run *batchRun) halt(err error) {
	run.haltOnce.Do(func() {
		run.mu.Lock()
		run.haltErr = err
		run.mu.Unlock()

		run.runner.logger.Error("batch halted", "error", err)
		run.cancel(fmt.Errorf("%w: %w", ErrBatchHalted, err))
	})
}

func (run *batchRun) fatal() error {
	run.mu.Lock()
	defer run.mu.Unlock()

	return run.haltErr
}

// process drives one unit to a terminal state.
func (run *batchRun) process(ctx context.Context, unit *Unit) {
	runner := run.runner

	ctx, span := runner.tracer.Start(ContextWithUnitID(ctx, unit.ID), "designmap.unit",
		trace.WithAttributes(
			attribute.String("unit.id", unit.ID),
			attribute.String("unit.name", unit.Name),
		))
	defer endUnitSpan(span, unit)

	if ctx.Err() != nil {
		unit.cancel(cancellation(ctx))

		return
	}

	err := run.analyze(ctx, unit)
	if err == nil {
		err = run.generate(ctx, unit)
	}

	if err == nil {
		err = run.validate(ctx, unit)
	}

	if err == nil {
		err = unit.transition(StateDone, "")
	}

	switch {
	case err == nil:
		runner.logger.DebugContext(ctx, "unit done", "unit", unit.ID, "duration", unit.Duration())
	case errors.Is(err, cache.ErrCacheConsistency):
		unit.fail(err)
	case ctx.Err() != nil:
		unit.cancel(cancellation(ctx))
	default:
		unit.fail(err)
		runner.logger.WarnContext(ctx, "unit failed", "unit", unit.ID, "state", unit.State, "error", err)
	}
}

func (run *batchRun) analyze(ctx context.Context, unit *Unit) error {
	err := unit.transition(StateIngesting, string(unit.node.Type))
	if err != nil {
		return err
	}

	var stageErr error

	record, err := run.runner.engine.AnalyzeObserved(ctx, unit.node, func(stage engine.Stage) {
		if stageErr == nil {
			stageErr = unit.advanceTo(stageState(stage), "")
		}
	})
	if err != nil {
		if errors.Is(err, cache.ErrCacheConsistency) {
			run.halt(err)
		}

		return err
	}

	if stageErr != nil {
		return stageErr
	}

	err = unit.advanceTo(StateMapping, "cached")
	if err != nil {
		return err
	}

	unit.Record = &record

	return nil
}

func (run *batchRun) generate(ctx context.Context, unit *Unit) error {
	runner := run.runner

	if runner.generator == nil {
		unit.Skipped = append(unit.Skipped, StageGeneration)

		return unit.transition(StateAwaitingExternalGeneration, "skipped: no generator")
	}

	err := unit.transition(StateAwaitingExternalGeneration, "")
	if err != nil {
		return err
	}

	record := *unit.Record

	generation, err := retryCall(ctx, runner, unit, StateAwaitingExternalGeneration,
		func(callCtx context.Context) (Generation, error) {
			return runner.generator.Generate(callCtx, record)
		})
	if err != nil {
		return err
	}

	unit.Generation = &generation

	return nil
}

func (run *batchRun) validate(ctx context.Context, unit *Unit) error {
	runner := run.runner

	if runner.validator == nil || unit.Generation == nil {
		unit.Skipped = append(unit.Skipped, StageValidation)

		return unit.transition(StateAwaitingExternalValidation, "skipped: nothing to validate")
	}

	err := unit.transition(StateAwaitingExternalValidation, "")
	if err != nil {
		return err
	}

	record, generation := *unit.Record, *unit.Generation

	verdict, err := retryCall(ctx, runner, unit, StateAwaitingExternalValidation,
		func(callCtx context.Context) (Verdict, error) {
			return runner.validator.Validate(callCtx, record, generation)
		})
	if err != nil {
		return err
	}

	unit.Verdict = &verdict

	if !verdict.Passed {
		return fmt.Errorf("%w: diff ratio %.3f", ErrValidationRejected, verdict.DiffRatio)
	}

	return nil
}

func endUnitSpan(span trace.Span, unit *Unit) {
	span.SetAttributes(
		attribute.String("unit.state", string(unit.State)),
		attribute.Int("unit.attempts", unit.Attempts),
	)

	if unit.Record != nil {
		span.SetAttributes(
			attribute.String("component.type", string(unit.Record.Classification.Type)),
			attribute.Bool("cache.hit", unit.Record.Cached),
		)
	}

	if unit.Err != nil {
		span.RecordError(unit.Err)
		span.SetStatus(codes.Error, unit.Err.Error())
	}

	span.End()
}

func stageState(stage engine.Stage) State {
	switch stage {
	case engine.StageClassify:
		return StateClassifying
	case engine.StageExtract:
		return StateExtracting
	default:
		return StateMapping
	}
}

func cancellation(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}

	return context.Canceled
}

func countStates(batch *Batch) map[State]int {
	counts := make(map[State]int)
	for _, unit := range batch.Units {
		counts[unit.State]++
	}

	return counts
}

func uniqueID(units map[string]*Unit, id string) string {
	if _, taken := units[id]; !taken {
		return id
	}

	for suffix := 2; ; suffix++ {
		candidate := id + "~" + strconv.Itoa(suffix)
		if _, taken := units[candidate]; !taken {
			return candidate
		}
	}
}
