package classify

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Rule families. A weight override in the heuristics configuration may name
// either a family ("name.exact") or a single rule ("button.name.exact").
const (
	FamilyNameExact  = "name.exact"
	FamilyNameToken  = "name.token"
	FamilyProperties = "properties"
	FamilyChildren   = "children"
	FamilyDimensions = "dimensions"
	FamilyStyle      = "style"
)

// Default family weights.
const (
	weightNameExact  = 0.6
	weightNameToken  = 0.45
	weightProperties = 0.2
	weightChildren   = 0.2
	weightDimension  = 0.15
	weightDimSoft    = 0.1
	weightStyle      = 0.1
)

// Geometry thresholds used by dimension and style rules.
const (
	buttonMinHeight    = 24
	buttonMaxHeight    = 56
	buttonMaxAspect    = 8
	inputMinHeight     = 32
	inputMaxHeight     = 56
	inputMinAspect     = 3
	textareaMinHeight  = 64
	checkboxMaxSide    = 24
	switchMaxHeight    = 32
	switchMinAspect    = 1.5
	switchMaxAspect    = 2.5
	avatarMinSide      = 24
	avatarMaxSide      = 128
	badgeMaxHeight     = 28
	badgeMinAspect     = 1.2
	cardMinWidth       = 200
	cardMinHeight      = 120
	cardMinRadius      = 8
	dialogMinWidth     = 320
	dialogMinHeight    = 160
	dialogShadowRadius = 16
	iconMaxSide        = 32
	squareTolerance    = 0.15
	maxButtonChildren  = 3
	minTabChildren     = 2
)

// RuleFunc inspects one node. It returns a human-readable reason and whether
// the rule fired. It must be pure.
type RuleFunc func(targetNode *scene.Node) (reason string, fired bool)

// Rule is one weighted vote for a component type.
type Rule struct {
	Name   string
	Family string
	Type   component.Type
	Weight float64
	Eval   RuleFunc
}

// DefaultRules returns the built-in rule table. Rules are grouped by catalog
// type in declaration order, and within a type by family.
func DefaultRules() []Rule {
	var rules []Rule

	for _, entry := range component.Entries() {
		rules = append(rules, nameRules(entry)...)

		if fragments, ok := propertyFragments[entry.Type]; ok {
			rules = append(rules, newRule(entry.Type, FamilyProperties, weightProperties, propertyKeysContain(fragments)))
		}

		if eval, ok := childRules[entry.Type]; ok {
			rules = append(rules, newRule(entry.Type, FamilyChildren, weightChildren, eval))
		}

		if dim, ok := dimensionRules[entry.Type]; ok {
			rules = append(rules, newRule(entry.Type, FamilyDimensions, dim.weight, dim.eval))
		}

		if eval, ok := styleRules[entry.Type]; ok {
			rules = append(rules, newRule(entry.Type, FamilyStyle, weightStyle, eval))
		}
	}

	return rules
}

func newRule(componentType component.Type, family string, weight float64, eval RuleFunc) Rule {
	return Rule{
		Name:   componentType.Canonical() + "." + family,
		Family: family,
		Type:   componentType,
		Weight: weight,
		Eval:   eval,
	}
}

func nameRules(entry component.Entry) []Rule {
	names := append([]string{entry.Type.Canonical()}, entry.Aliases...)

	exact := func(targetNode *scene.Node) (string, bool) {
		head := nameHead(targetNode.Name)
		if slices.Contains(names, head) {
			return fmt.Sprintf("name %q is a name of %s", targetNode.Name, entry.Type), true
		}

		return "", false
	}

	token := func(targetNode *scene.Node) (string, bool) {
		joined := " " + strings.Join(scene.Tokens(targetNode.Name), " ") + " "

		for _, name := range names {
			if strings.Contains(joined, " "+name+" ") {
				return fmt.Sprintf("name %q contains %q", targetNode.Name, name), true
			}
		}

		return "", false
	}

	return []Rule{
		newRule(entry.Type, FamilyNameExact, weightNameExact, exact),
		newRule(entry.Type, FamilyNameToken, weightNameToken, token),
	}
}

// nameHead returns the lower-cased first segment of a slash-separated name:
// "Button / Primary / Large" → "button".
func nameHead(name string) string {
	head, _, _ := strings.Cut(name, "/")

	return strings.ToLower(strings.Join(strings.Fields(head), " "))
}

var propertyFragments = map[component.Type][]string{
	component.Button:   {"button"},
	component.Card:     {"card"},
	component.Dialog:   {"open", "dismissible", "modal"},
	component.Input:    {"placeholder", "input type"},
	component.Textarea: {"rows", "multiline", "resize"},
	component.Checkbox: {"checked", "indeterminate"},
	component.Switch:   {"toggled", "switch"},
	component.Select:   {"options", "selected"},
	component.Tabs:     {"active tab", "tab count"},
	component.Badge:    {"count", "badge"},
	component.Avatar:   {"initials", "fallback", "image src"},
	component.Alert:    {"severity", "dismiss"},
	component.Tooltip:  {"side", "placement", "tooltip"},
}

func propertyKeysContain(fragments []string) RuleFunc {
	return func(targetNode *scene.Node) (string, bool) {
		key, _, ok := targetNode.PropertyContaining(fragments...)
		if !ok {
			return "", false
		}

		return fmt.Sprintf("property %q", scene.NormalizeKey(key)), true
	}
}

var childRules = map[component.Type]RuleFunc{
	component.Button:   buttonChildren,
	component.Card:     childNamed("header", "title", "content", "footer", "description"),
	component.Dialog:   childNamed("overlay", "close", "actions"),
	component.Input:    childNamed("placeholder", "cursor", "caret"),
	component.Checkbox: childNamed("checkmark", "check", "indicator"),
	component.Switch:   childNamed("thumb", "knob", "track"),
	component.Select:   childNamed("chevron", "trigger", "caret down"),
	component.Tabs:     tabChildren,
	component.Avatar:   childNamed("initials", "fallback", "photo"),
	component.Alert:    childNamed("alert title", "alert description"),
	component.Tooltip:  childNamed("arrow", "pointer"),
}

// buttonChildren fires for a text label flanked only by icons.
func buttonChildren(targetNode *scene.Node) (string, bool) {
	if len(targetNode.Children) == 0 || len(targetNode.Children) > maxButtonChildren {
		return "", false
	}

	labels := 0

	for _, child := range targetNode.Children {
		switch {
		case child.IsText():
			labels++
		case isIconName(child.Name):
		default:
			return "", false
		}
	}

	if labels != 1 {
		return "", false
	}

	return "single text label with icon siblings", true
}

func tabChildren(targetNode *scene.Node) (string, bool) {
	tabs := 0

	for _, child := range targetNode.Children {
		if slices.Contains(scene.Tokens(child.Name), "tab") {
			tabs++
		}
	}

	if tabs < minTabChildren {
		return "", false
	}

	return fmt.Sprintf("%d children named tab", tabs), true
}

func childNamed(fragments ...string) RuleFunc {
	return func(targetNode *scene.Node) (string, bool) {
		for _, child := range targetNode.Children {
			joined := " " + strings.Join(scene.Tokens(child.Name), " ") + " "

			for _, fragment := range fragments {
				if strings.Contains(joined, " "+fragment+" ") {
					return fmt.Sprintf("child %q", child.Name), true
				}
			}
		}

		return "", false
	}
}

func isIconName(name string) bool {
	return nameHead(name) == "icon"
}

type dimensionRule struct {
	weight float64
	eval   RuleFunc
}

var dimensionRules = map[component.Type]dimensionRule{
	component.Button: {weightDimension, func(targetNode *scene.Node) (string, bool) {
		height, aspect := targetNode.Bounds.Height, targetNode.AspectRatio()

		return sizeReason(targetNode), height >= buttonMinHeight && height <= buttonMaxHeight &&
			aspect >= 1 && aspect <= buttonMaxAspect
	}},
	component.Input: {weightDimSoft, func(targetNode *scene.Node) (string, bool) {
		height := targetNode.Bounds.Height

		return sizeReason(targetNode), height >= inputMinHeight && height <= inputMaxHeight &&
			targetNode.AspectRatio() >= inputMinAspect
	}},
	component.Textarea: {weightDimSoft, func(targetNode *scene.Node) (string, bool) {
		return sizeReason(targetNode), targetNode.Bounds.Height >= textareaMinHeight &&
			targetNode.AspectRatio() >= 1
	}},
	component.Checkbox: {weightDimension, func(targetNode *scene.Node) (string, bool) {
		return sizeReason(targetNode), isSquare(targetNode) && targetNode.Bounds.Height <= checkboxMaxSide
	}},
	component.Switch: {weightDimension, func(targetNode *scene.Node) (string, bool) {
		aspect := targetNode.AspectRatio()

		return sizeReason(targetNode), targetNode.Bounds.Height <= switchMaxHeight &&
			aspect >= switchMinAspect && aspect <= switchMaxAspect
	}},
	component.Badge: {weightDimSoft, func(targetNode *scene.Node) (string, bool) {
		return sizeReason(targetNode), targetNode.Bounds.Height > 0 &&
			targetNode.Bounds.Height <= badgeMaxHeight && targetNode.AspectRatio() >= badgeMinAspect
	}},
	component.Avatar: {weightDimension, func(targetNode *scene.Node) (string, bool) {
		side := targetNode.Bounds.Height

		return sizeReason(targetNode), isSquare(targetNode) && side >= avatarMinSide && side <= avatarMaxSide &&
			targetNode.CornerRadius*2 >= side
	}},
	component.Card: {weightDimSoft, func(targetNode *scene.Node) (string, bool) {
		return sizeReason(targetNode), targetNode.Bounds.Width >= cardMinWidth &&
			targetNode.Bounds.Height >= cardMinHeight
	}},
	component.Icon: {weightDimSoft, func(targetNode *scene.Node) (string, bool) {
		return sizeReason(targetNode), isSquare(targetNode) && targetNode.Bounds.Height <= iconMaxSide
	}},
}

func sizeReason(targetNode *scene.Node) string {
	return fmt.Sprintf("%gx%g", targetNode.Bounds.Width, targetNode.Bounds.Height)
}

func isSquare(targetNode *scene.Node) bool {
	if targetNode.Bounds.Height <= 0 {
		return false
	}

	return math.Abs(targetNode.AspectRatio()-1) <= squareTolerance
}

var styleRules = map[component.Type]RuleFunc{
	component.Button: func(targetNode *scene.Node) (string, bool) {
		if targetNode.CornerRadius > 0 && len(targetNode.VisibleSolidColors()) > 0 {
			return "solid paint with rounded corners", true
		}

		return "", false
	},
	component.Card: func(targetNode *scene.Node) (string, bool) {
		if targetNode.CornerRadius >= cardMinRadius && (hasShadow(targetNode, 0) || len(targetNode.Strokes) > 0) {
			return "rounded surface with border or shadow", true
		}

		return "", false
	},
	component.Dialog: func(targetNode *scene.Node) (string, bool) {
		if targetNode.Bounds.Width >= dialogMinWidth && targetNode.Bounds.Height >= dialogMinHeight &&
			hasShadow(targetNode, dialogShadowRadius) {
			return "large surface with elevated shadow", true
		}

		return "", false
	},
	component.Badge: func(targetNode *scene.Node) (string, bool) {
		if targetNode.Bounds.Height > 0 && targetNode.CornerRadius*2 >= targetNode.Bounds.Height &&
			len(targetNode.Fills) > 0 {
			return "filled pill shape", true
		}

		return "", false
	},
	component.Alert: func(targetNode *scene.Node) (string, bool) {
		if len(targetNode.Strokes) > 0 && len(targetNode.Fills) > 0 && targetNode.AspectRatio() >= inputMinAspect {
			return "wide bordered surface", true
		}

		return "", false
	},
}

func hasShadow(targetNode *scene.Node, minRadius float64) bool {
	for _, effect := range targetNode.Effects {
		if effect.Type == scene.EffectDropShadow && effect.Radius >= minRadius {
			return true
		}
	}

	return false
}
