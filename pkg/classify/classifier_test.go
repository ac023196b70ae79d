package classify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/designmap/pkg/classify"
	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/heuristics"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

func instance(name string, children ...*scene.Node) *scene.Node {
	return &scene.Node{
		ID:       name,
		Name:     name,
		Type:     scene.TypeInstance,
		Visible:  true,
		Opacity:  1,
		Children: children,
	}
}

func TestClassify_CanonicalNames(t *testing.T) {
	t.Parallel()

	classifier := classify.New(nil)

	for _, componentType := range component.All() {
		t.Run(string(componentType), func(t *testing.T) {
			t.Parallel()

			result := classifier.Classify(instance(string(componentType)))

			assert.Equal(t, componentType, result.Type)
			assert.Greater(t, result.Confidence, heuristics.DefaultConfidenceFloor)
			assert.LessOrEqual(t, result.Confidence, 1.0)
			assert.NotEmpty(t, result.Evidence)
			assert.False(t, result.Ambiguous)
		})
	}
}

func TestClassify_BelowFloorIsContainer(t *testing.T) {
	t.Parallel()

	classifier := classify.New(nil)

	// Only the soft Card dimension rule fires.
	frame := &scene.Node{ID: "1", Name: "Frame 12", Type: scene.TypeInstance, Bounds: scene.Bounds{Width: 400, Height: 300}}

	result := classifier.Classify(frame)

	assert.Equal(t, component.Container, result.Type)
	assert.True(t, result.Ambiguous)
	require.NotEmpty(t, result.Evidence)
	assert.True(t, strings.HasPrefix(result.Evidence[len(result.Evidence)-1], "floor:"))
	assert.Contains(t, result.Evidence[0], "card.dimensions")
}

func TestClassify_NoSignals(t *testing.T) {
	t.Parallel()

	result := classify.New(nil).Classify(&scene.Node{ID: "1", Name: "Group 4", Type: scene.TypeInstance})

	assert.Equal(t, component.Container, result.Type)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, []string{"no rule fired"}, result.Evidence)
}

func TestClassify_ButtonScenario(t *testing.T) {
	t.Parallel()

	button := instance("Button",
		instance("Icon / Send"),
		&scene.Node{ID: "label", Name: "Send", Type: scene.TypeText, Characters: "Send"},
		instance("Icon / Circle"),
	)
	button.Bounds = scene.Bounds{Width: 96, Height: 36}
	button.Properties = map[string]scene.PropertyValue{"Button Text#1": scene.TextValue("Send")}

	result := classify.New(nil).Classify(button)

	assert.Equal(t, component.Button, result.Type)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)

	joined := strings.Join(result.Evidence, "\n")
	assert.Contains(t, joined, "button.name.exact")
	assert.Contains(t, joined, "button.children")
	assert.Contains(t, joined, "button.dimensions")
}

func TestClassify_TieBreaksByCatalogOrder(t *testing.T) {
	t.Parallel()

	always := func(*scene.Node) (string, bool) { return "always", true }

	rules := []classify.Rule{
		{Name: "card.any", Family: "test", Type: component.Card, Weight: 0.5, Eval: always},
		{Name: "button.any", Family: "test", Type: component.Button, Weight: 0.5, Eval: always},
	}

	result := classify.New(nil, classify.WithRules(rules)).Classify(instance("x"))

	assert.Equal(t, component.Button, result.Type)
	assert.True(t, result.Ambiguous)
	assert.Contains(t, result.Evidence[len(result.Evidence)-1], "tie:")
}

func TestClassify_WeightOverrides(t *testing.T) {
	t.Parallel()

	cfg := heuristics.Default()
	cfg.Weights = map[string]float64{
		classify.FamilyNameExact: 0,
		classify.FamilyNameToken: 0,
		"button.dimensions":      0.05,
	}

	node := instance("Button")
	node.Bounds = scene.Bounds{Width: 80, Height: 36}

	result := classify.New(cfg).Classify(node)

	assert.Equal(t, component.Container, result.Type)
	assert.InDelta(t, 0.05, result.Confidence, 1e-9)
}

func TestClassify_SlashNames(t *testing.T) {
	t.Parallel()

	classifier := classify.New(nil)

	tests := []struct {
		name string
		want component.Type
	}{
		{"Button / Primary / Large", component.Button},
		{"Icon / Send", component.Icon},
		{"Modal / Confirm", component.Dialog},
		{"Text Field", component.Input},
		{"Icon Button", component.Button},
		{"Card / Button", component.Card},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, classifier.Classify(instance(tt.name)).Type)
		})
	}
}

func TestClassify_StructuralSignals(t *testing.T) {
	t.Parallel()

	classifier := classify.New(nil)

	toggle := &scene.Node{
		ID: "sw", Name: "Frame", Type: scene.TypeInstance,
		Bounds:   scene.Bounds{Width: 44, Height: 24},
		Children: []*scene.Node{{ID: "thumb", Name: "Thumb", Type: scene.TypeEllipse}},
	}

	result := classifier.Classify(toggle)
	assert.Equal(t, component.Switch, result.Type)

	tabs := &scene.Node{
		ID: "tabs", Name: "Nav", Type: scene.TypeInstance,
		Children: []*scene.Node{
			{ID: "t1", Name: "Tab 1", Type: scene.TypeFrame},
			{ID: "t2", Name: "Tab 2", Type: scene.TypeFrame},
		},
		Properties: map[string]scene.PropertyValue{"Active Tab#1": scene.TextValue("1")},
	}

	result = classifier.Classify(tabs)
	assert.Equal(t, component.Tabs, result.Type)
	assert.InDelta(t, 0.4, result.Confidence, 1e-9)
}

func TestClassifyTree(t *testing.T) {
	t.Parallel()

	icon := instance("Icon / Send")
	button := instance("Button", icon)
	label := &scene.Node{ID: "label", Type: scene.TypeText}
	root := &scene.Node{ID: "root", Name: "Page", Type: scene.TypeFrame, Children: []*scene.Node{button, label}}

	results := classify.New(nil).ClassifyTree(root)

	require.Len(t, results, 3)
	assert.Equal(t, component.Container, results["root"].Type)
	assert.Equal(t, component.Button, results[button.ID].Type)
	assert.Equal(t, component.Icon, results[icon.ID].Type)
	assert.NotContains(t, results, "label")

	assert.Empty(t, classify.New(nil).ClassifyTree(nil))
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	classifier := classify.New(nil)
	node := instance("Badge")
	node.Bounds = scene.Bounds{Width: 48, Height: 20}
	node.CornerRadius = 10
	node.Fills = []scene.Paint{{Type: scene.PaintSolid, Color: &scene.Color{R: 1, A: 1}}}

	first := classifier.Classify(node)

	for range 10 {
		assert.Equal(t, first, classifier.Classify(node))
	}
}
