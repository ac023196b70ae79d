package mapping

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Positions a matcher may require.
const (
	PositionFirst = "first"
	PositionLast  = "last"
)

// Sentinel errors for schema loading.
var (
	ErrUnknownComponent = errors.New("unknown component type")
	ErrDuplicateSlot    = errors.New("duplicate slot name")
	ErrEmptyMatcher     = errors.New("slot has no matchers")
	ErrInvalidPosition  = errors.New("invalid matcher position")
	ErrInvalidPattern   = errors.New("invalid matcher pattern")
)

// Matcher accepts a child node when every condition it sets holds.
type Matcher struct {
	Icon     bool             `yaml:"icon,omitempty"`
	Text     bool             `yaml:"text,omitempty"`
	Types    []scene.NodeType `yaml:"types,omitempty"`
	Pattern  string           `yaml:"pattern,omitempty"`
	Exclude  string           `yaml:"exclude,omitempty"`
	Position string           `yaml:"position,omitempty"`
}

// Slot is a named position in a component's layout. Children are offered to
// a slot's matchers in order; the first accepting matcher wins. A Multiple
// slot keeps accepting children until a later slot is filled.
type Slot struct {
	Name     string    `yaml:"name"`
	Required bool      `yaml:"required,omitempty"`
	Multiple bool      `yaml:"multiple,omitempty"`
	Accept   []Matcher `yaml:"accept"`
}

// Schema is the ordered slot layout of one component type.
type Schema struct {
	Type  component.Type `yaml:"type"`
	Slots []Slot         `yaml:"slots"`
}

// Reusable matchers.
var (
	iconMatcher = Matcher{Icon: true}
	textMatcher = Matcher{Text: true}
)

func named(pattern string) Matcher {
	return Matcher{Pattern: pattern}
}

// DefaultSchemas returns the built-in slot schemas, one per catalog type.
func DefaultSchemas() []Schema {
	return []Schema{
		{Type: component.Button, Slots: []Slot{
			{Name: "leftIcon", Accept: []Matcher{iconMatcher}},
			{Name: "label", Required: true, Accept: []Matcher{textMatcher, named(`^(label|text|title)\b`)}},
			{Name: "rightIcon", Accept: []Matcher{iconMatcher}},
		}},
		{Type: component.Card, Slots: []Slot{
			{Name: "header", Accept: []Matcher{named(`header`)}},
			{Name: "title", Accept: []Matcher{named(`title|heading`), textMatcher}},
			{Name: "description", Accept: []Matcher{named(`description|subtitle`), textMatcher}},
			{Name: "content", Required: true, Accept: []Matcher{
				named(`content|body|main`),
				{Types: []scene.NodeType{scene.TypeFrame, scene.TypeGroup}, Exclude: `header|footer|actions`},
			}},
			{Name: "footer", Accept: []Matcher{named(`footer|actions`)}},
		}},
		{Type: component.Dialog, Slots: []Slot{
			{Name: "title", Required: true, Accept: []Matcher{named(`title|heading`), textMatcher}},
			{Name: "description", Accept: []Matcher{named(`description|subtitle`), textMatcher}},
			{Name: "content", Accept: []Matcher{named(`content|body`)}},
			{Name: "footer", Accept: []Matcher{named(`footer|actions|buttons`)}},
			{Name: "close", Accept: []Matcher{named(`close|dismiss`), iconMatcher}},
		}},
		{Type: component.Input, Slots: []Slot{
			{Name: "leftIcon", Accept: []Matcher{iconMatcher}},
			{Name: "value", Required: true, Accept: []Matcher{textMatcher, named(`value|placeholder`)}},
			{Name: "rightIcon", Accept: []Matcher{iconMatcher}},
		}},
		{Type: component.Textarea, Slots: []Slot{
			{Name: "value", Required: true, Accept: []Matcher{textMatcher, named(`value|placeholder`)}},
			{Name: "resizeHandle", Accept: []Matcher{named(`resize|handle|grip`)}},
		}},
		{Type: component.Checkbox, Slots: []Slot{
			{Name: "indicator", Required: true, Accept: []Matcher{named(`check|indicator|box`), iconMatcher}},
			{Name: "label", Accept: []Matcher{textMatcher}},
		}},
		{Type: component.Switch, Slots: []Slot{
			{Name: "thumb", Required: true, Accept: []Matcher{
				named(`thumb|knob|handle|track`),
				{Types: []scene.NodeType{scene.TypeEllipse}},
			}},
			{Name: "label", Accept: []Matcher{textMatcher}},
		}},
		{Type: component.Select, Slots: []Slot{
			{Name: "value", Required: true, Accept: []Matcher{textMatcher, named(`value|placeholder`)}},
			{Name: "chevron", Accept: []Matcher{named(`chevron|caret|arrow`), iconMatcher}},
		}},
		{Type: component.Tabs, Slots: []Slot{
			{Name: "triggers", Required: true, Multiple: true, Accept: []Matcher{named(`\btab|trigger|list`)}},
			{Name: "content", Accept: []Matcher{named(`content|panel`)}},
		}},
		{Type: component.Badge, Slots: []Slot{
			{Name: "icon", Accept: []Matcher{iconMatcher}},
			{Name: "label", Required: true, Accept: []Matcher{textMatcher}},
		}},
		{Type: component.Avatar, Slots: []Slot{
			{Name: "image", Accept: []Matcher{
				named(`image|photo|picture`),
				{Types: []scene.NodeType{scene.TypeRectangle, scene.TypeEllipse}},
			}},
			{Name: "fallback", Accept: []Matcher{named(`initials|fallback`), textMatcher}},
		}},
		{Type: component.Alert, Slots: []Slot{
			{Name: "icon", Accept: []Matcher{iconMatcher}},
			{Name: "title", Required: true, Accept: []Matcher{named(`title|heading`), textMatcher}},
			{Name: "description", Accept: []Matcher{named(`description|body`), textMatcher}},
			{Name: "action", Accept: []Matcher{named(`action|button|close`)}},
		}},
		{Type: component.Tooltip, Slots: []Slot{
			{Name: "content", Required: true, Accept: []Matcher{textMatcher, named(`content|label`)}},
			{Name: "arrow", Accept: []Matcher{named(`arrow|pointer|caret`), {Types: []scene.NodeType{scene.TypeVector}}}},
		}},
		{Type: component.Icon, Slots: []Slot{
			{Name: "glyph", Accept: []Matcher{{Types: []scene.NodeType{
				scene.TypeVector, scene.TypeBooleanOp, scene.TypeGroup, scene.TypeFrame,
				scene.TypeEllipse, scene.TypeRectangle, scene.TypeLine, scene.TypeStar, scene.TypePolygon,
			}}}},
		}},
	}
}

// LoadSchemas reads slot schemas from a YAML file. Schemas in the file replace
// the defaults for their component type; other types keep their defaults.
func LoadSchemas(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	var loaded []Schema

	err = yaml.Unmarshal(data, &loaded)
	if err != nil {
		return nil, fmt.Errorf("parse schemas: %w", err)
	}

	byType := make(map[component.Type]Schema, len(loaded))

	for _, schema := range loaded {
		err = schema.Validate()
		if err != nil {
			return nil, err
		}

		byType[schema.Type] = schema
	}

	merged := DefaultSchemas()
	for idx, schema := range merged {
		if override, ok := byType[schema.Type]; ok {
			merged[idx] = override
		}
	}

	return merged, nil
}

// Validate checks that the schema targets a catalog type and that its slots
// are uniquely named and have matchers.
func (schema Schema) Validate() error {
	if !schema.Type.IsCatalog() {
		return fmt.Errorf("%w: %q", ErrUnknownComponent, schema.Type)
	}

	seen := make(map[string]bool, len(schema.Slots))

	for _, slot := range schema.Slots {
		if seen[slot.Name] {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateSlot, schema.Type, slot.Name)
		}

		seen[slot.Name] = true

		if len(slot.Accept) == 0 {
			return fmt.Errorf("%w: %s.%s", ErrEmptyMatcher, schema.Type, slot.Name)
		}

		for _, matcher := range slot.Accept {
			if matcher.Position != "" && matcher.Position != PositionFirst && matcher.Position != PositionLast {
				return fmt.Errorf("%w: %q", ErrInvalidPosition, matcher.Position)
			}

			for _, pattern := range []string{matcher.Pattern, matcher.Exclude} {
				_, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("%w: %s.%s: %w", ErrInvalidPattern, schema.Type, slot.Name, err)
				}
			}
		}
	}

	return nil
}
