// Package mapping assigns a classified node's children to the named slots of
// its component schema in one greedy left-to-right pass.
package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/extract"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Warning reports a required slot that no child filled. It is attached to the
// mapping; processing continues.
type Warning struct {
	Slot   string `json:"slot"`
	Reason string `json:"reason"`
}

// Unmapped is a child that no slot accepted.
type Unmapped struct {
	NodeID string `json:"nodeId"`
	Name   string `json:"name"`
	Index  int    `json:"index"`
}

// Mapping is the slot assignment for one node. Slots maps a slot name to the
// id of the first child placed there; Items lists every child of Multiple
// slots.
type Mapping struct {
	Type     component.Type      `json:"type"`
	Slots    map[string]string   `json:"slots"`
	Items    map[string][]string `json:"items,omitempty"`
	Unmapped []Unmapped          `json:"unmapped,omitempty"`
	Warnings []Warning           `json:"warnings,omitempty"`
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithSchemas replaces the slot schemas for the types they name.
func WithSchemas(schemas []Schema) Option {
	return func(mapper *Mapper) {
		for _, schema := range schemas {
			mapper.schemas[schema.Type] = schema
		}
	}
}

// Mapper maps children to slots. It is safe for concurrent use.
type Mapper struct {
	schemas  map[component.Type]Schema
	patterns *PatternMatcher
}

// New creates a Mapper with [DefaultSchemas].
func New(opts ...Option) *Mapper {
	mapper := &Mapper{
		schemas:  make(map[component.Type]Schema),
		patterns: NewPatternMatcher(),
	}

	for _, schema := range DefaultSchemas() {
		mapper.schemas[schema.Type] = schema
	}

	for _, opt := range opts {
		opt(mapper)
	}

	return mapper
}

// Schema returns the schema for componentType.
func (mapper *Mapper) Schema(componentType component.Type) (Schema, bool) {
	schema, ok := mapper.schemas[componentType]

	return schema, ok
}

// Digest identifies the resolved schema table. Mappers with equal digests
// produce equal mappings for the same node and type.
func (mapper *Mapper) Digest() string {
	types := make([]component.Type, 0, len(mapper.schemas))
	for componentType := range mapper.schemas {
		types = append(types, componentType)
	}

	slices.Sort(types)

	ordered := make([]Schema, 0, len(types))
	for _, componentType := range types {
		ordered = append(ordered, mapper.schemas[componentType])
	}

	encoded, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(encoded)

	return hex.EncodeToString(sum[:8])
}

// Patterns exposes the pattern cache, mainly for statistics.
func (mapper *Mapper) Patterns() *PatternMatcher {
	return mapper.patterns
}

// Map assigns the children of targetNode to the slots of componentType's
// schema. Children no slot accepts are recorded as unmapped. Types without a
// schema map nothing.
//
// Slot order follows layout order, so matching is not a plain "first
// unfilled slot that accepts the child". Each child goes to the first
// unfilled accepting slot at or after the last filled one, and slots before
// that are closed even when still empty. A Button laid out as [label, icon]
// maps the icon to rightIcon, never to the skipped leftIcon. This keeps the
// mapping in step with the extractor, which reads icon placement from the
// same child order.
func (mapper *Mapper) Map(targetNode *scene.Node, componentType component.Type) Mapping {
	result := Mapping{Type: componentType, Slots: make(map[string]string)}

	schema, ok := mapper.schemas[componentType]
	if !ok {
		for idx, child := range targetNode.Children {
			result.Unmapped = append(result.Unmapped, Unmapped{NodeID: child.ID, Name: child.Name, Index: idx})
		}

		return result
	}

	cursor := 0
	lastChild := len(targetNode.Children) - 1

	for idx, child := range targetNode.Children {
		slotIdx := mapper.place(schema.Slots, cursor, result, child, position(idx, lastChild))
		if slotIdx < 0 {
			result.Unmapped = append(result.Unmapped, Unmapped{NodeID: child.ID, Name: child.Name, Index: idx})

			continue
		}

		slot := schema.Slots[slotIdx]
		cursor = slotIdx

		if _, filled := result.Slots[slot.Name]; !filled {
			result.Slots[slot.Name] = child.ID
		}

		if slot.Multiple {
			if result.Items == nil {
				result.Items = make(map[string][]string)
			}

			result.Items[slot.Name] = append(result.Items[slot.Name], child.ID)
		}
	}

	for _, slot := range schema.Slots {
		if _, filled := result.Slots[slot.Name]; slot.Required && !filled {
			result.Warnings = append(result.Warnings, Warning{
				Slot:   slot.Name,
				Reason: fmt.Sprintf("required slot %s of %s has no matching child", slot.Name, componentType),
			})
		}
	}

	return result
}

// place returns the index of the slot that takes child, or -1.
func (mapper *Mapper) place(slots []Slot, cursor int, current Mapping, child *scene.Node, pos childPosition) int {
	for slotIdx := cursor; slotIdx < len(slots); slotIdx++ {
		slot := slots[slotIdx]

		if _, filled := current.Slots[slot.Name]; filled && !slot.Multiple {
			continue
		}

		if mapper.accepts(slot, child, pos) {
			return slotIdx
		}
	}

	return -1
}

func (mapper *Mapper) accepts(slot Slot, child *scene.Node, pos childPosition) bool {
	for _, matcher := range slot.Accept {
		if mapper.matches(matcher, child, pos) {
			return true
		}
	}

	return false
}

func (mapper *Mapper) matches(matcher Matcher, child *scene.Node, pos childPosition) bool {
	if matcher.Icon {
		if _, isIcon := extract.ParseIconName(child.Name); !isIcon {
			return false
		}
	}

	if matcher.Text && !child.IsText() {
		return false
	}

	if len(matcher.Types) > 0 && !slices.Contains(matcher.Types, child.Type) {
		return false
	}

	if matcher.Pattern != "" && !mapper.patterns.MatchString(matcher.Pattern, child.Name) {
		return false
	}

	if matcher.Exclude != "" && mapper.patterns.MatchString(matcher.Exclude, child.Name) {
		return false
	}

	switch matcher.Position {
	case PositionFirst:
		return pos.first
	case PositionLast:
		return pos.last
	default:
		return true
	}
}

type childPosition struct {
	first bool
	last  bool
}

func position(idx, lastIdx int) childPosition {
	return childPosition{first: idx == 0, last: idx == lastIdx}
}
