// Package classify assigns a component type, a confidence score, and an
// evidence trail to scene nodes by folding an ordered table of weighted rules.
package classify

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/heuristics"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// scoreEpsilon absorbs floating-point noise when comparing aggregate scores.
const scoreEpsilon = 1e-9

// Classification is the classifier's verdict for one node.
type Classification struct {
	Type       component.Type `json:"type"`
	Confidence float64        `json:"confidence"`
	Evidence   []string       `json:"evidence"`
	// Ambiguous is set when the best candidate fell below the confidence
	// floor or tied with another type.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces the default rule table.
func WithRules(rules []Rule) Option {
	return func(classifier *Classifier) {
		classifier.rules = rules
	}
}

// Classifier scores nodes against a rule table. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	cfg   *heuristics.Config
	rules []Rule
}

// New creates a Classifier. A nil cfg uses [heuristics.Default].
func New(cfg *heuristics.Config, opts ...Option) *Classifier {
	if cfg == nil {
		cfg = heuristics.Default()
	}

	classifier := &Classifier{cfg: cfg, rules: DefaultRules()}

	for _, opt := range opts {
		opt(classifier)
	}

	return classifier
}

// Rules returns the rule table in evaluation order.
func (classifier *Classifier) Rules() []Rule {
	return classifier.rules
}

// candidate accumulates the votes for one component type.
type candidate struct {
	componentType component.Type
	score         float64
	evidence      []string
}

// Classify evaluates every rule once against targetNode and returns the type
// with the highest aggregate score. Ties go to the type declared earlier in
// the catalog. A best score below the confidence floor yields
// [component.Container]. Classify never fails.
func (classifier *Classifier) Classify(targetNode *scene.Node) Classification {
	candidates := classifier.score(targetNode)

	best := bestCandidate(candidates)
	if best == nil {
		return Classification{
			Type:      component.Container,
			Evidence:  []string{"no rule fired"},
			Ambiguous: true,
		}
	}

	confidence := math.Min(best.score, 1)
	tied := countTied(candidates, best.score) > 1

	if best.score+scoreEpsilon < classifier.cfg.ConfidenceFloor {
		evidence := allEvidence(candidates)
		evidence = append(evidence, fmt.Sprintf(
			"floor: best candidate %s scored %.2f, below confidence floor %.2f",
			best.componentType, best.score, classifier.cfg.ConfidenceFloor,
		))

		return Classification{
			Type:       component.Container,
			Confidence: confidence,
			Evidence:   evidence,
			Ambiguous:  true,
		}
	}

	evidence := best.evidence
	if tied {
		evidence = append(evidence, fmt.Sprintf(
			"tie: score %.2f shared, %s wins by catalog order", best.score, best.componentType,
		))
	}

	return Classification{
		Type:       best.componentType,
		Confidence: confidence,
		Evidence:   evidence,
		Ambiguous:  tied,
	}
}

// ClassifyTree classifies the root and every INSTANCE node beneath it,
// keyed by node id.
func (classifier *Classifier) ClassifyTree(root *scene.Node) map[string]Classification {
	results := make(map[string]Classification)

	if root == nil {
		return results
	}

	results[root.ID] = classifier.Classify(root)

	root.Walk(func(curr *scene.Node) bool {
		if curr != root && curr.IsInstance() {
			results[curr.ID] = classifier.Classify(curr)
		}

		return true
	})

	return results
}

// score folds the rule table into per-type candidates, kept in the order the
// types first appear in the table.
func (classifier *Classifier) score(targetNode *scene.Node) []*candidate {
	var candidates []*candidate

	index := make(map[component.Type]*candidate)

	for _, rule := range classifier.rules {
		reason, fired := rule.Eval(targetNode)
		if !fired {
			continue
		}

		weight := classifier.weight(rule)
		if weight == 0 {
			continue
		}

		entry, ok := index[rule.Type]
		if !ok {
			entry = &candidate{componentType: rule.Type}
			index[rule.Type] = entry
			candidates = append(candidates, entry)
		}

		entry.score += weight
		entry.evidence = append(entry.evidence, fmt.Sprintf("%s: %s (+%.2f)", rule.Name, reason, weight))
	}

	return candidates
}

func (classifier *Classifier) weight(rule Rule) float64 {
	if weight, ok := classifier.cfg.Weights[rule.Name]; ok {
		return weight
	}

	return classifier.cfg.Weight(rule.Family, rule.Weight)
}

func bestCandidate(candidates []*candidate) *candidate {
	var best *candidate

	for _, entry := range candidates {
		switch {
		case best == nil:
			best = entry
		case entry.score > best.score+scoreEpsilon:
			best = entry
		case math.Abs(entry.score-best.score) <= scoreEpsilon &&
			component.Rank(entry.componentType) < component.Rank(best.componentType):
			best = entry
		}
	}

	return best
}

func countTied(candidates []*candidate, score float64) int {
	tied := 0

	for _, entry := range candidates {
		if math.Abs(entry.score-score) <= scoreEpsilon {
			tied++
		}
	}

	return tied
}

func allEvidence(candidates []*candidate) []string {
	var evidence []string

	for _, entry := range candidates {
		evidence = append(evidence, entry.evidence...)
	}

	return evidence
}
