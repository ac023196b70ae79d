// Package engine chains classification, property extraction, and slot
// mapping for one node behind the fingerprint cache, producing the record
// handed to code generation.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/classify"
	"github.com/Sumatoshi-tech/designmap/pkg/extract"
	"github.com/Sumatoshi-tech/designmap/pkg/heuristics"
	"github.com/Sumatoshi-tech/designmap/pkg/mapping"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Analysis is the cached, position-independent result of the three pure
// stages for one subtree.
type Analysis struct {
	Classification classify.Classification `json:"classification"`
	Properties     extract.Properties      `json:"properties"`
	Mapping        mapping.Mapping         `json:"mapping"`
}

// Record is the complete description of one component for downstream
// generation. It never needs the raw scene graph again.
type Record struct {
	NodeID         string                  `json:"nodeId"`
	Name           string                  `json:"name"`
	Fingerprint    string                  `json:"fingerprint"`
	Cached         bool                    `json:"cached"`
	Classification classify.Classification `json:"classification"`
	Properties     extract.Properties      `json:"properties"`
	Mapping        mapping.Mapping         `json:"mapping"`
}

// RootRecord is the classification of a document root. The root is never a
// processing unit, so it carries no properties or mapping.
type RootRecord struct {
	NodeID         string                  `json:"nodeId"`
	Name           string                  `json:"name"`
	Classification classify.Classification `json:"classification"`
}

// Stage is one of the pure analysis stages.
type Stage string

// Analysis stages in execution order.
const (
	StageClassify Stage = "classify"
	StageExtract  Stage = "extract"
	StageMap      Stage = "map"
)

// Option configures an Engine.
type Option func(*Engine)

// WithHeuristics sets the heuristics used by every stage.
func WithHeuristics(cfg *heuristics.Config) Option {
	return func(engine *Engine) { engine.heuristics = cfg }
}

// WithSchemas overrides mapper slot schemas.
func WithSchemas(schemas []mapping.Schema) Option {
	return func(engine *Engine) { engine.schemas = schemas }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(engine *Engine) { engine.logger = logger }
}

// WithComputeHook registers a function called every time the pure stages
// actually run, before the result is cached.
func WithComputeHook(hook func(*scene.Node)) Option {
	return func(engine *Engine) { engine.onCompute = hook }
}

// Engine analyzes nodes. It is safe for concurrent use.
type Engine struct {
	heuristics *heuristics.Config
	schemas    []mapping.Schema
	classifier *classify.Classifier
	extractor  *extract.Extractor
	mapper     *mapping.Mapper
	results    *cache.Cache[Analysis]
	salt       string
	logger     *slog.Logger
	onCompute  func(*scene.Node)
}

// New creates an Engine. A nil cache disables caching.
func New(results *cache.Cache[Analysis], opts ...Option) *Engine {
	engine := &Engine{
		heuristics: heuristics.Default(),
		results:    results,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(engine)
	}

	engine.classifier = classify.New(engine.heuristics)
	engine.extractor = extract.New(engine.heuristics)
	engine.mapper = mapping.New(mapping.WithSchemas(engine.schemas))
	engine.salt = engine.heuristics.Digest() + "/" + engine.mapper.Digest()

	return engine
}

// Fingerprint returns the cache key of the subtree rooted at targetNode under
// the engine's heuristics and slot schemas.
func (engine *Engine) Fingerprint(targetNode *scene.Node) string {
	return scene.Fingerprint(targetNode, engine.salt)
}

// Classify runs only the classifier.
func (engine *Engine) Classify(targetNode *scene.Node) classify.Classification {
	return engine.classifier.Classify(targetNode)
}

// Extract runs only the property extractor.
func (engine *Engine) Extract(targetNode *scene.Node, classification classify.Classification) extract.Properties {
	return engine.extractor.Extract(targetNode, classification)
}

// Map runs only the slot mapper.
func (engine *Engine) Map(targetNode *scene.Node, classification classify.Classification) mapping.Mapping {
	return engine.mapper.Map(targetNode, classification.Type)
}

// Analyze classifies, extracts, and maps targetNode. A structurally identical
// subtree analyzed before is served from the cache without running any stage.
// The only errors come from the cache, including *cache.ConsistencyError.
func (engine *Engine) Analyze(ctx context.Context, targetNode *scene.Node) (Record, error) {
	return engine.AnalyzeObserved(ctx, targetNode, nil)
}

// AnalyzeObserved is Analyze with observe called as each stage starts. On a
// cache hit no stage runs and observe is never called.
func (engine *Engine) AnalyzeObserved(
	ctx context.Context, targetNode *scene.Node, observe func(Stage),
) (Record, error) {
	fingerprint := engine.Fingerprint(targetNode)

	record := Record{NodeID: targetNode.ID, Name: targetNode.Name, Fingerprint: fingerprint}

	if engine.results == nil {
		analysis := engine.compute(targetNode, observe)
		record.Classification = analysis.Classification
		record.Properties = analysis.Properties
		record.Mapping = analysis.Mapping

		return record, nil
	}

	analysis, computed, err := engine.results.GetOrCompute(ctx, fingerprint, func(context.Context) (Analysis, error) {
		return relativize(engine.compute(targetNode, observe), targetNode), nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("analyze %s: %w", targetNode.ID, err)
	}

	bound := bind(analysis, targetNode)

	record.Cached = !computed
	record.Classification = bound.Classification
	record.Properties = bound.Properties
	record.Mapping = bound.Mapping

	engine.logger.Debug("node analyzed",
		"node", targetNode.ID, "type", record.Classification.Type, "cached", record.Cached)

	return record, nil
}

// ClassifyRoot classifies the root of doc.
func (engine *Engine) ClassifyRoot(doc *scene.Document) RootRecord {
	return RootRecord{
		NodeID:         doc.Root.ID,
		Name:           doc.Root.Name,
		Classification: engine.classifier.Classify(doc.Root),
	}
}

// AnalyzeDocument analyzes every unit of doc in document order. Units are
// the outermost instances, or every instance when nested is set.
func (engine *Engine) AnalyzeDocument(ctx context.Context, doc *scene.Document, nested bool) ([]Record, error) {
	units := Units(doc.Root, nested)
	records := make([]Record, 0, len(units))

	for _, unit := range units {
		record, err := engine.Analyze(ctx, unit)
		if err != nil {
			return records, err
		}

		records = append(records, record)
	}

	return records, nil
}

// Units returns the processing units of the tree under root.
func Units(root *scene.Node, nested bool) []*scene.Node {
	if nested {
		return root.Instances()
	}

	return root.OutermostInstances()
}

func (engine *Engine) compute(targetNode *scene.Node, observe func(Stage)) Analysis {
	if engine.onCompute != nil {
		engine.onCompute(targetNode)
	}

	if observe == nil {
		observe = func(Stage) {}
	}

	observe(StageClassify)
	classification := engine.classifier.Classify(targetNode)

	observe(StageExtract)
	properties := engine.extractor.Extract(targetNode, classification)

	observe(StageMap)

	return Analysis{
		Classification: classification,
		Properties:     properties,
		Mapping:        engine.mapper.Map(targetNode, classification.Type),
	}
}
