// Package extract pulls structured configuration out of a classified node:
// display text, icon references with left/right placement, variant, size,
// interaction state, and verbatim boolean flags. Every value records whether
// it was read verbatim, inferred, or defaulted.
package extract

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/designmap/pkg/classify"
	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/heuristics"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Source tells where an attribute value came from.
type Source string

// Source constants.
const (
	SourceVerbatim Source = "verbatim"
	SourceInferred Source = "inferred"
	SourceDefault  Source = "default"
)

// Interaction states.
const (
	StateDefault  = "default"
	StateDisabled = "disabled"
	StateLoading  = "loading"
)

// Property names consulted for verbatim values.
var (
	variantKeys  = []string{"variant", "type", "style", "hierarchy", "kind"}
	sizeKeys     = []string{"size"}
	stateKeys    = []string{"state", "status"}
	disabledKeys = []string{"disabled", "is disabled"}
	loadingKeys  = []string{"loading", "is loading"}
)

// Attribute is one extracted value with its provenance.
type Attribute struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
}

// Inferred reports whether the value is a guess rather than ground truth.
func (attr Attribute) Inferred() bool {
	return attr.Source == SourceInferred
}

// Properties is the extractor's output for one node. It is always complete:
// absent or ambiguous data degrades to documented defaults.
type Properties struct {
	Text     *Attribute      `json:"text"`
	Variant  Attribute       `json:"variant"`
	Size     Attribute       `json:"size"`
	State    Attribute       `json:"state"`
	Icons    []Icon          `json:"icons"`
	Flags    map[string]bool `json:"flags,omitempty"`
	Evidence []string        `json:"evidence"`
}

// TextValue returns the display text, or "".
func (props *Properties) TextValue() string {
	if props.Text == nil {
		return ""
	}

	return props.Text.Value
}

// LeftIcon returns the first icon placed before the label.
func (props *Properties) LeftIcon() (Icon, bool) {
	return props.iconAt(PlacementLeft)
}

// RightIcon returns the first icon placed after the label.
func (props *Properties) RightIcon() (Icon, bool) {
	return props.iconAt(PlacementRight)
}

// UnknownIcons returns icon layers whose names are not in the lookup table.
func (props *Properties) UnknownIcons() []Icon {
	var unknown []Icon

	for _, icon := range props.Icons {
		if icon.Status == IconUnknown {
			unknown = append(unknown, icon)
		}
	}

	return unknown
}

func (props *Properties) iconAt(placement Placement) (Icon, bool) {
	for _, icon := range props.Icons {
		if icon.Placement == placement {
			return icon, true
		}
	}

	return Icon{}, false
}

// Extractor derives Properties. It is immutable and safe for concurrent use.
type Extractor struct {
	cfg *heuristics.Config
}

// New creates an Extractor. A nil cfg uses [heuristics.Default].
func New(cfg *heuristics.Config) *Extractor {
	if cfg == nil {
		cfg = heuristics.Default()
	}

	return &Extractor{cfg: cfg}
}

// Extract derives the configuration of targetNode classified as
// classification. It never fails.
func (extractor *Extractor) Extract(targetNode *scene.Node, classification classify.Classification) Properties {
	componentType := classification.Type
	trail := &evidence{}

	props := Properties{
		Text:  extractor.text(targetNode, componentType, trail),
		Flags: flags(targetNode),
	}

	props.Icons = icons(targetNode, trail)
	props.Variant = extractor.variant(targetNode, props.Text, trail)
	props.Size = extractor.size(targetNode, componentType, trail)
	props.State = extractor.state(targetNode, props.Icons, trail)
	props.Evidence = trail.lines

	return props
}

type evidence struct {
	lines []string
}

func (trail *evidence) add(format string, args ...any) {
	trail.lines = append(trail.lines, fmt.Sprintf(format, args...))
}

func (extractor *Extractor) text(
	targetNode *scene.Node, componentType component.Type, trail *evidence,
) *Attribute {
	slots := extractor.cfg.TextSlotsFor(componentType)

	for _, key := range targetNode.PropertyKeys() {
		value := targetNode.Properties[key]
		if value.Kind() != scene.KindText {
			continue
		}

		normalized := scene.NormalizeKey(key)

		for _, slot := range slots {
			if !strings.Contains(normalized, scene.NormalizeKey(slot)) {
				continue
			}

			text, _ := value.Text()
			trail.add("verbatim: text from property %q", normalized)

			return &Attribute{Value: text, Source: SourceVerbatim}
		}
	}

	layer := targetNode.FirstDescendant(func(curr *scene.Node) bool {
		return curr.IsText() && curr.Characters != ""
	})
	if layer != nil {
		trail.add("inferred: text from descendant text layer %q", layer.Name)

		return &Attribute{Value: layer.Characters, Source: SourceInferred}
	}

	trail.add("default: no text property or text layer")

	return nil
}

// labelIndex returns the index of the child holding the label: the first
// child that is a text layer or, failing that, the first non-icon child with
// a text descendant. It returns -1 when there is none.
func labelIndex(targetNode *scene.Node) int {
	for idx, child := range targetNode.Children {
		if child.IsText() {
			return idx
		}
	}

	for idx, child := range targetNode.Children {
		if _, isIcon := ParseIconName(child.Name); isIcon {
			continue
		}

		if child.FirstDescendant((*scene.Node).IsText) != nil {
			return idx
		}
	}

	return -1
}

func icons(targetNode *scene.Node, trail *evidence) []Icon {
	label := labelIndex(targetNode)

	var found []Icon

	for idx, child := range targetNode.Children {
		icon, ok := NormalizeIconLayer(child.Name)
		if !ok {
			continue
		}

		icon.NodeID = child.ID

		switch {
		case label < 0:
			icon.Placement = PlacementStandalone
		case idx < label:
			icon.Placement = PlacementLeft
		default:
			icon.Placement = PlacementRight
		}

		switch icon.Status {
		case IconKnown:
			trail.add("verbatim: %s icon %s from layer %q", icon.Placement, icon.Identifier(), child.Name)
		case IconPlaceholder:
			trail.add("verbatim: %s icon is a placeholder (%q)", icon.Placement, child.Name)
		case IconUnknown:
			trail.add("unknown: %s icon %q is not in the icon table", icon.Placement, icon.Raw)
		}

		found = append(found, icon)
	}

	return found
}

func (extractor *Extractor) variant(targetNode *scene.Node, text *Attribute, trail *evidence) Attribute {
	if key, value, ok := targetNode.Property(variantKeys...); ok {
		if raw, isText := value.Text(); isText && raw != "" {
			canonical, known := extractor.cfg.IsVariantName(raw)
			if !known {
				canonical = strings.ToLower(raw)
			}

			trail.add("verbatim: variant %s from property %q", canonical, scene.NormalizeKey(key))

			return Attribute{Value: canonical, Source: SourceVerbatim}
		}
	}

	if extractor.cfg.VariantFromText && text != nil {
		if name, ok := extractor.cfg.IsVariantName(text.Value); ok {
			trail.add("inferred: variant %s from text %q equal to a variant name (variant_from_text)", name, text.Value)

			return Attribute{Value: name, Source: SourceInferred}
		}
	}

	if palette, ok := extractor.cfg.MatchPalette(targetNode); ok {
		trail.add("inferred: variant %s from %s color palette", palette.Variant, palette.Target)

		return Attribute{Value: palette.Variant, Source: SourceInferred}
	}

	trail.add("default: variant %s", heuristics.DefaultVariant)

	return Attribute{Value: heuristics.DefaultVariant, Source: SourceDefault}
}

func (extractor *Extractor) size(
	targetNode *scene.Node, componentType component.Type, trail *evidence,
) Attribute {
	if key, value, ok := targetNode.Property(sizeKeys...); ok {
		if raw, isText := value.Text(); isText && raw != "" {
			size := strings.ToLower(raw)
			trail.add("verbatim: size %s from property %q", size, scene.NormalizeKey(key))

			return Attribute{Value: size, Source: SourceVerbatim}
		}
	}

	size, bucketed := extractor.cfg.SizeFor(componentType, targetNode.Bounds.Height)
	if bucketed {
		trail.add("inferred: size %s from height %g", size, targetNode.Bounds.Height)

		return Attribute{Value: size, Source: SourceInferred}
	}

	trail.add("default: size %s", size)

	return Attribute{Value: size, Source: SourceDefault}
}

func (extractor *Extractor) state(targetNode *scene.Node, found []Icon, trail *evidence) Attribute {
	if key, value, ok := targetNode.Property(stateKeys...); ok {
		if raw, isText := value.Text(); isText && raw != "" {
			state := strings.ToLower(raw)
			trail.add("verbatim: state %s from property %q", state, scene.NormalizeKey(key))

			return Attribute{Value: state, Source: SourceVerbatim}
		}
	}

	disabledKey, disabledSet := boolProperty(targetNode, disabledKeys)
	if disabledSet.present && disabledSet.value {
		trail.add("verbatim: state %s from property %q", StateDisabled, scene.NormalizeKey(disabledKey))

		return Attribute{Value: StateDisabled, Source: SourceVerbatim}
	}

	loadingKey, loadingSet := boolProperty(targetNode, loadingKeys)
	if loadingSet.present && loadingSet.value {
		trail.add("verbatim: state %s from property %q", StateLoading, scene.NormalizeKey(loadingKey))

		return Attribute{Value: StateLoading, Source: SourceVerbatim}
	}

	if !disabledSet.present && targetNode.Opacity < extractor.cfg.DisabledOpacity {
		trail.add("inferred: state %s from opacity %g below %g",
			StateDisabled, targetNode.Opacity, extractor.cfg.DisabledOpacity)

		return Attribute{Value: StateDisabled, Source: SourceInferred}
	}

	if !loadingSet.present {
		for _, icon := range found {
			if icon.Identifier() == LoadingIcon {
				trail.add("inferred: state %s from %s icon", StateLoading, LoadingIcon)

				return Attribute{Value: StateLoading, Source: SourceInferred}
			}
		}
	}

	if disabledSet.present || loadingSet.present {
		trail.add("verbatim: state %s from boolean properties", StateDefault)

		return Attribute{Value: StateDefault, Source: SourceVerbatim}
	}

	trail.add("default: state %s", StateDefault)

	return Attribute{Value: StateDefault, Source: SourceDefault}
}

type optionalBool struct {
	present bool
	value   bool
}

func boolProperty(targetNode *scene.Node, names []string) (string, optionalBool) {
	key, value, ok := targetNode.Property(names...)
	if !ok {
		return "", optionalBool{}
	}

	flag, isBool := value.Bool()
	if !isBool {
		return "", optionalBool{}
	}

	return key, optionalBool{present: true, value: flag}
}

// flags surfaces every BOOLEAN property under its lowerCamel name.
func flags(targetNode *scene.Node) map[string]bool {
	var result map[string]bool

	for _, key := range targetNode.PropertyKeys() {
		flag, ok := targetNode.Properties[key].Bool()
		if !ok {
			continue
		}

		if result == nil {
			result = make(map[string]bool)
		}

		result[scene.CamelKey(key)] = flag
	}

	return result
}
