// Package scene provides the scene-graph node model exported by the design tool,
// together with decoding, structural validation, traversal, and fingerprinting.
package scene

import (
	"encoding/json"
	"time"
)

// NodeType is the design-tool type tag of a node.
type NodeType string

// Node type constants. Unknown type strings are preserved verbatim.
const (
	TypeDocument     NodeType = "DOCUMENT"
	TypeCanvas       NodeType = "CANVAS"
	TypeFrame        NodeType = "FRAME"
	TypeGroup        NodeType = "GROUP"
	TypeSection      NodeType = "SECTION"
	TypeComponent    NodeType = "COMPONENT"
	TypeComponentSet NodeType = "COMPONENT_SET"
	TypeInstance     NodeType = "INSTANCE"
	TypeText         NodeType = "TEXT"
	TypeVector       NodeType = "VECTOR"
	TypeRectangle    NodeType = "RECTANGLE"
	TypeEllipse      NodeType = "ELLIPSE"
	TypeLine         NodeType = "LINE"
	TypeStar         NodeType = "STAR"
	TypePolygon      NodeType = "POLYGON"
	TypeBooleanOp    NodeType = "BOOLEAN_OPERATION"
)

// Bounds is the rendered geometry of a node in absolute coordinates.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Color is an RGBA color with channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// PaintType tags the kind of a fill or stroke paint.
type PaintType string

// Paint type constants.
const (
	PaintSolid          PaintType = "SOLID"
	PaintGradientLinear PaintType = "GRADIENT_LINEAR"
	PaintGradientRadial PaintType = "GRADIENT_RADIAL"
	PaintGradientAngle  PaintType = "GRADIENT_ANGULAR"
	PaintImage          PaintType = "IMAGE"
)

// Paint is a variant-tagged fill or stroke. Color is only set for SOLID paints.
type Paint struct {
	Type    PaintType `json:"type"`
	Color   *Color    `json:"color,omitempty"`
	Opacity *float64  `json:"opacity,omitempty"`
	Visible *bool     `json:"visible,omitempty"`
}

// IsVisible reports whether the paint contributes to rendering.
func (p Paint) IsVisible() bool {
	if p.Visible != nil && !*p.Visible {
		return false
	}

	return p.Opacity == nil || *p.Opacity > 0
}

// EffectType tags the kind of a visual effect.
type EffectType string

// Effect type constants.
const (
	EffectDropShadow     EffectType = "DROP_SHADOW"
	EffectInnerShadow    EffectType = "INNER_SHADOW"
	EffectLayerBlur      EffectType = "LAYER_BLUR"
	EffectBackgroundBlur EffectType = "BACKGROUND_BLUR"
)

// Effect is a variant-tagged visual effect.
type Effect struct {
	Type    EffectType `json:"type"`
	Radius  float64    `json:"radius,omitempty"`
	Color   *Color     `json:"color,omitempty"`
	OffsetX float64    `json:"offsetX,omitempty"`
	OffsetY float64    `json:"offsetY,omitempty"`
	Visible *bool      `json:"visible,omitempty"`
}

// Typography holds text styling for TEXT nodes.
type Typography struct {
	FontFamily string  `json:"fontFamily,omitempty"`
	FontWeight float64 `json:"fontWeight,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty"`
}

// Layout holds auto-layout settings for container nodes.
type Layout struct {
	Mode          string  `json:"mode,omitempty"`
	ItemSpacing   float64 `json:"itemSpacing,omitempty"`
	PaddingTop    float64 `json:"paddingTop,omitempty"`
	PaddingRight  float64 `json:"paddingRight,omitempty"`
	PaddingBottom float64 `json:"paddingBottom,omitempty"`
	PaddingLeft   float64 `json:"paddingLeft,omitempty"`
	AlignItems    string  `json:"alignItems,omitempty"`
}

// Node is one element of the scene graph. Nodes are built once by [Decode]
// and must be treated as read-only afterwards; they are shared across
// concurrent pipeline units.
type Node struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Type         NodeType                   `json:"type"`
	Visible      bool                       `json:"visible"`
	Locked       bool                       `json:"locked,omitempty"`
	Bounds       Bounds                     `json:"geometry"`
	Opacity      float64                    `json:"opacity"`
	CornerRadius float64                    `json:"cornerRadius,omitempty"`
	Fills        []Paint                    `json:"fills,omitempty"`
	Strokes      []Paint                    `json:"strokes,omitempty"`
	StrokeWeight float64                    `json:"strokeWeight,omitempty"`
	Effects      []Effect                   `json:"effects,omitempty"`
	Characters   string                     `json:"characters,omitempty"`
	Typography   *Typography                `json:"typography,omitempty"`
	Layout       *Layout                    `json:"layout,omitempty"`
	ComponentID  string                     `json:"componentId,omitempty"`
	Properties   map[string]PropertyValue   `json:"componentProperties,omitempty"`
	Children     []*Node                    `json:"children,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// Metadata describes the exported design document.
type Metadata struct {
	FileKey    string    `json:"fileKey"`
	Name       string    `json:"name"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Document is a decoded export: version tag, metadata, and the root node.
type Document struct {
	Version  string                     `json:"version"`
	Metadata Metadata                   `json:"metadata"`
	Root     *Node                      `json:"document"`
	Extra    map[string]json.RawMessage `json:"-"`
}
