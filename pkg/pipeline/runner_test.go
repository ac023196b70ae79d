package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

var errInduced = errors.New("induced failure")

func buttonNode(id, label string) *scene.Node {
	return &scene.Node{
		ID:      id,
		Name:    "Button",
		Type:    scene.TypeInstance,
		Visible: true,
		Opacity: 1,
		Bounds:  scene.Bounds{Width: 96, Height: 36},
		Properties: map[string]scene.PropertyValue{
			"Label": scene.TextValue(label),
		},
		Children: []*scene.Node{
			{ID: id + "/t", Name: "Label", Type: scene.TypeText, Characters: label, Visible: true, Opacity: 1},
		},
	}
}

func document(count int) *scene.Document {
	root := &scene.Node{ID: "0:0", Name: "Page", Type: scene.TypeFrame}

	for idx := range count {
		root.Children = append(root.Children, buttonNode(fmt.Sprintf("u%d", idx), fmt.Sprintf("Label %d", idx)))
	}

	return &scene.Document{Version: "1.1", Root: root}
}

func fastConfig() pipeline.Config {
	return pipeline.Config{
		Workers:         4,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Minute,
		CallTimeout:     time.Second,
	}
}

func newEngine(t *testing.T, opts ...cache.Option) *engine.Engine {
	t.Helper()

	results, err := cache.New[engine.Analysis](cache.NewMemoryStore(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() { results.Close() })

	return engine.New(results)
}

func okGenerator() pipeline.Generator {
	return pipeline.GeneratorFunc(func(_ context.Context, record engine.Record) (pipeline.Generation, error) {
		return pipeline.Generation{Code: "<Button>" + record.Properties.TextValue() + "</Button>"}, nil
	})
}

func TestRun_OneFailureDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	const units = 12

	generator := pipeline.GeneratorFunc(func(_ context.Context, record engine.Record) (pipeline.Generation, error) {
		if record.NodeID == "u7" {
			return pipeline.Generation{}, errInduced
		}

		return pipeline.Generation{Code: record.NodeID}, nil
	})

	runner := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithGenerator(generator))

	batch, err := runner.Run(context.Background(), document(units))
	require.NoError(t, err)

	assert.Len(t, batch.Units, units)
	assert.Equal(t, units-1, batch.Counts[pipeline.StateDone])
	assert.Equal(t, 1, batch.Counts[pipeline.StateFailed])

	failed := batch.Units["u7"]
	assert.Equal(t, pipeline.StateFailed, failed.State)
	require.ErrorIs(t, failed.Err, errInduced)
	assert.Equal(t, 1, failed.Attempts)

	for id, unit := range batch.Units {
		if id == "u7" {
			continue
		}

		require.NotNil(t, unit.Generation, id)
		assert.Equal(t, id, unit.Generation.Code)
	}

	assert.NotEmpty(t, batch.RunID)
	assert.False(t, batch.Finished.Before(batch.Started))
}

func TestRun_StateHistory(t *testing.T) {
	t.Parallel()

	runner := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithGenerator(okGenerator()))

	batch, err := runner.Run(context.Background(), document(1))
	require.NoError(t, err)

	unit := batch.Units["u0"]

	var path []pipeline.State
	for _, transition := range unit.History {
		path = append(path, transition.To)
	}

	assert.Equal(t, []pipeline.State{
		pipeline.StateIngesting,
		pipeline.StateClassifying,
		pipeline.StateExtracting,
		pipeline.StateMapping,
		pipeline.StateAwaitingExternalGeneration,
		pipeline.StateAwaitingExternalValidation,
		pipeline.StateDone,
	}, path)

	assert.Equal(t, []string{pipeline.StageValidation}, unit.Skipped)
	require.NotNil(t, unit.Record)
	assert.Equal(t, "Label 0", unit.Record.Properties.TextValue())
}

func TestRun_CachedUnitsStillPassEveryState(t *testing.T) {
	t.Parallel()

	doc := document(0)
	doc.Root.Children = []*scene.Node{buttonNode("a", "Same"), buttonNode("b", "Same")}

	cfg := fastConfig()
	cfg.Workers = 1

	batch, err := pipeline.NewRunner(newEngine(t), cfg).Run(context.Background(), doc)
	require.NoError(t, err)

	second := batch.Units["b"]
	assert.Equal(t, pipeline.StateDone, second.State)
	assert.True(t, second.Record.Cached)

	notes := map[pipeline.State]string{}
	for _, transition := range second.History {
		notes[transition.To] = transition.Note
	}

	assert.Equal(t, "cached", notes[pipeline.StateClassifying])
	assert.Equal(t, "cached", notes[pipeline.StateMapping])
}

func TestRun_NoCollaboratorsSkipsExternalStages(t *testing.T) {
	t.Parallel()

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig()).Run(context.Background(), document(3))
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Counts[pipeline.StateDone])

	for _, unit := range batch.Units {
		assert.Equal(t, []string{pipeline.StageGeneration, pipeline.StageValidation}, unit.Skipped)
		assert.Zero(t, unit.Attempts)
	}
}

func TestRun_ClassifiesRoot(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	doc := document(2)

	batch, err := pipeline.NewRunner(eng, fastConfig()).Run(context.Background(), doc)
	require.NoError(t, err)

	require.NotNil(t, batch.Root)
	assert.Equal(t, "0:0", batch.Root.NodeID)
	assert.Equal(t, eng.Classify(doc.Root), batch.Root.Classification)
	assert.NotContains(t, batch.Units, "0:0")

	nodes, err := pipeline.NewRunner(eng, fastConfig()).RunNodes(context.Background(), doc.Root.Children)
	require.NoError(t, err)
	assert.Nil(t, nodes.Root)
}

func TestRun_TransientErrorsAreRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	generator := pipeline.GeneratorFunc(func(context.Context, engine.Record) (pipeline.Generation, error) {
		if calls.Add(1) < 3 {
			return pipeline.Generation{}, pipeline.Transient(errInduced)
		}

		return pipeline.Generation{Code: "ok"}, nil
	})

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithGenerator(generator)).
		Run(context.Background(), document(1))
	require.NoError(t, err)

	unit := batch.Units["u0"]
	assert.Equal(t, pipeline.StateDone, unit.State)
	assert.Equal(t, 3, unit.Attempts)

	retries := 0

	for _, transition := range unit.History {
		if transition.To == pipeline.StateRetrying {
			retries++

			assert.Equal(t, pipeline.StateAwaitingExternalGeneration, transition.From)
		}
	}

	assert.Equal(t, 2, retries)
}

func TestRun_RetriesExhausted(t *testing.T) {
	t.Parallel()

	generator := pipeline.GeneratorFunc(func(context.Context, engine.Record) (pipeline.Generation, error) {
		return pipeline.Generation{}, pipeline.Transient(errInduced)
	})

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithGenerator(generator)).
		Run(context.Background(), document(1))
	require.NoError(t, err)

	unit := batch.Units["u0"]
	assert.Equal(t, pipeline.StateFailed, unit.State)
	assert.Equal(t, 3, unit.Attempts)
	require.ErrorIs(t, unit.Err, errInduced)
	assert.Contains(t, unit.Error, "after 3 attempts")
}

func TestRun_PermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	generator := pipeline.GeneratorFunc(func(context.Context, engine.Record) (pipeline.Generation, error) {
		calls.Add(1)

		return pipeline.Generation{}, errInduced
	})

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithGenerator(generator)).
		Run(context.Background(), document(1))
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateFailed, batch.Units["u0"].State)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRun_CallTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	generator := pipeline.GeneratorFunc(func(ctx context.Context, _ engine.Record) (pipeline.Generation, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()

			return pipeline.Generation{}, ctx.Err()
		}

		return pipeline.Generation{Code: "ok"}, nil
	})

	cfg := fastConfig()
	cfg.CallTimeout = 20 * time.Millisecond

	batch, err := pipeline.NewRunner(newEngine(t), cfg, pipeline.WithGenerator(generator)).
		Run(context.Background(), document(1))
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateDone, batch.Units["u0"].State)
	assert.Equal(t, 2, batch.Units["u0"].Attempts)
}

func TestRun_ValidationRejected(t *testing.T) {
	t.Parallel()

	validator := pipeline.ValidatorFunc(
		func(context.Context, engine.Record, pipeline.Generation) (pipeline.Verdict, error) {
			return pipeline.Verdict{Passed: false, DiffRatio: 0.25}, nil
		})

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig(),
		pipeline.WithGenerator(okGenerator()), pipeline.WithValidator(validator)).
		Run(context.Background(), document(1))
	require.NoError(t, err)

	unit := batch.Units["u0"]
	assert.Equal(t, pipeline.StateFailed, unit.State)
	require.ErrorIs(t, unit.Err, pipeline.ErrValidationRejected)
	require.NotNil(t, unit.Verdict)
	assert.InDelta(t, 0.25, unit.Verdict.DiffRatio, 1e-9)
}

func TestRun_CancellationKeepsCompletedUnits(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })

	generator := pipeline.GeneratorFunc(func(_ context.Context, record engine.Record) (pipeline.Generation, error) {
		if record.NodeID == "u1" {
			cancel()
			<-stuck // ignores its context; the runner must not wait for it

			return pipeline.Generation{}, errInduced
		}

		return pipeline.Generation{Code: "ok"}, nil
	})

	cfg := fastConfig()
	cfg.Workers = 1
	cfg.CallTimeout = 0

	batch, err := pipeline.NewRunner(newEngine(t), cfg, pipeline.WithGenerator(generator)).Run(ctx, document(4))
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateDone, batch.Units["u0"].State)
	assert.Equal(t, pipeline.StateCanceled, batch.Units["u1"].State)
	require.ErrorIs(t, batch.Units["u1"].Err, context.Canceled)
	assert.Equal(t, pipeline.StateCanceled, batch.Units["u2"].State)
	assert.Equal(t, pipeline.StateCanceled, batch.Units["u3"].State)
	assert.Nil(t, batch.Units["u3"].Record)
	assert.Equal(t, 1, batch.Counts[pipeline.StateDone])
	assert.Equal(t, 3, batch.Counts[pipeline.StateCanceled])
}

// racingStore hides existing entries from the first reads of each key, as if
// another process wrote them concurrently.
type racingStore struct {
	cache.Store

	mu     sync.Mutex
	hidden map[string]int
}

func (store *racingStore) Get(ctx context.Context, key string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.hidden[key] > 0 {
		store.hidden[key]--

		return nil, cache.ErrNotFound
	}

	return store.Store.Get(ctx, key)
}

func TestRun_ConsistencyViolationHaltsBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := document(3)
	target := doc.Root.Children[0]

	inner := cache.NewMemoryStore()

	plain := engine.New(nil)
	fingerprint := plain.Fingerprint(target)

	seed, err := cache.New[engine.Analysis](inner)
	require.NoError(t, err)

	divergent, err := plain.Analyze(ctx, buttonNode("x", "Something else"))
	require.NoError(t, err)
	require.NoError(t, seed.Put(ctx, fingerprint, engine.Analysis{
		Classification: divergent.Classification,
		Properties:     divergent.Properties,
		Mapping:        divergent.Mapping,
	}))

	store := &racingStore{Store: inner, hidden: map[string]int{fingerprint: 3}}

	results, err := cache.New[engine.Analysis](store, cache.WithFrontSize(0))
	require.NoError(t, err)

	cfg := fastConfig()
	cfg.Workers = 1

	batch, err := pipeline.NewRunner(engine.New(results), cfg).Run(ctx, doc)
	require.ErrorIs(t, err, cache.ErrCacheConsistency)
	require.NotNil(t, batch)
	require.ErrorIs(t, batch.Err, cache.ErrCacheConsistency)

	first := batch.Units[target.ID]
	assert.Equal(t, pipeline.StateFailed, first.State)
	require.ErrorIs(t, first.Err, cache.ErrCacheConsistency)

	for _, unit := range batch.Units {
		if unit.ID != target.ID {
			assert.Equal(t, pipeline.StateCanceled, unit.State)
			require.ErrorIs(t, unit.Err, pipeline.ErrBatchHalted)
		}
	}
}

func TestRun_TransitionObserver(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		observed = make(map[string][]pipeline.State)
	)

	observe := func(unitID string, transition pipeline.Transition) {
		mu.Lock()
		defer mu.Unlock()

		observed[unitID] = append(observed[unitID], transition.To)
	}

	runner := pipeline.NewRunner(newEngine(t), fastConfig(), pipeline.WithTransitionObserver(observe))

	batch, err := runner.Run(context.Background(), document(3))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, observed, 3)

	for id, unit := range batch.Units {
		var recorded []pipeline.State
		for _, transition := range unit.History {
			recorded = append(recorded, transition.To)
		}

		assert.Equal(t, recorded, observed[id], id)
	}
}

func TestRun_UnitSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	generator := pipeline.GeneratorFunc(func(_ context.Context, record engine.Record) (pipeline.Generation, error) {
		if record.NodeID == "u1" {
			return pipeline.Generation{}, errInduced
		}

		return pipeline.Generation{Code: "<Button />"}, nil
	})

	_, err := pipeline.NewRunner(newEngine(t), fastConfig(),
		pipeline.WithGenerator(generator),
		pipeline.WithTracer(tp.Tracer("test")),
	).Run(context.Background(), document(2))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	byUnit := make(map[string]tracetest.SpanStub, len(spans))

	for _, span := range spans {
		assert.Equal(t, "designmap.unit", span.Name)

		for _, kv := range span.Attributes {
			if kv.Key == "unit.id" {
				byUnit[kv.Value.AsString()] = span
			}
		}
	}

	assert.Equal(t, codes.Unset, byUnit["u0"].Status.Code)
	assert.Equal(t, codes.Error, byUnit["u1"].Status.Code)
	assert.Contains(t, byUnit["u1"].Status.Description, errInduced.Error())
}

func TestRun_EmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewRunner(newEngine(t), fastConfig()).Run(context.Background(), document(0))
	assert.ErrorIs(t, err, pipeline.ErrNoUnits)
}

func TestRunNodes_DuplicateIDs(t *testing.T) {
	t.Parallel()

	nodes := []*scene.Node{buttonNode("same", "A"), buttonNode("same", "B")}

	batch, err := pipeline.NewRunner(newEngine(t), fastConfig()).RunNodes(context.Background(), nodes)
	require.NoError(t, err)

	assert.Equal(t, []string{"same", "same~2"}, batch.Order)
	assert.Len(t, batch.Ordered(), 2)
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to pipeline.State
		want     bool
	}{
		{pipeline.StatePending, pipeline.StateIngesting, true},
		{pipeline.StatePending, pipeline.StateMapping, false},
		{pipeline.StateClassifying, pipeline.StateFailed, true},
		{pipeline.StateMapping, pipeline.StateRetrying, false},
		{pipeline.StateAwaitingExternalGeneration, pipeline.StateRetrying, true},
		{pipeline.StateRetrying, pipeline.StateAwaitingExternalValidation, true},
		{pipeline.StateDone, pipeline.StateFailed, false},
		{pipeline.StateCanceled, pipeline.StatePending, false},
		{pipeline.StateIngesting, pipeline.StateCanceled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pipeline.CanTransition(tt.from, tt.to), "%s → %s", tt.from, tt.to)
	}

	assert.True(t, slices.ContainsFunc(pipeline.States(), pipeline.State.Terminal))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, pipeline.IsTransient(pipeline.Transient(errInduced)))
	assert.True(t, pipeline.IsTransient(fmt.Errorf("wrapped: %w", pipeline.Transient(errInduced))))
	assert.True(t, pipeline.IsTransient(context.DeadlineExceeded))
	assert.False(t, pipeline.IsTransient(errInduced))
	assert.False(t, pipeline.IsTransient(nil))
	assert.NoError(t, pipeline.Transient(nil))
}
