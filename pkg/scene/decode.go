package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// SupportedVersions lists the export format-version tags Decode accepts.
var SupportedVersions = []string{"1", "1.0", "1.1"}

// Envelope keys of the export document.
var envelopeKeys = []string{"version", "metadata", "document"}

// Known node keys; everything else lands in Node.Extra.
var nodeKeys = []string{
	"id", "name", "type", "visible", "locked", "geometry", "absoluteBoundingBox",
	"opacity", "cornerRadius", "fills", "strokes", "strokeWeight", "effects",
	"characters", "typography", "layout", "componentId", "componentProperties", "children",
}

// wireNode is the export shape of one node, children excluded.
type wireNode struct {
	ID                  string                   `json:"id"`
	Name                string                   `json:"name"`
	Type                NodeType                 `json:"type"`
	Visible             *bool                    `json:"visible"`
	Locked              bool                     `json:"locked"`
	Geometry            *Bounds                  `json:"geometry"`
	AbsoluteBoundingBox *Bounds                  `json:"absoluteBoundingBox"`
	Opacity             *float64                 `json:"opacity"`
	CornerRadius        float64                  `json:"cornerRadius"`
	Fills               []Paint                  `json:"fills"`
	Strokes             []Paint                  `json:"strokes"`
	StrokeWeight        float64                  `json:"strokeWeight"`
	Effects             []Effect                 `json:"effects"`
	Characters          string                   `json:"characters"`
	Typography          *Typography              `json:"typography"`
	Layout              *Layout                  `json:"layout"`
	ComponentID         string                   `json:"componentId"`
	Properties          map[string]PropertyValue `json:"componentProperties"`
}

// decodeFrame is one pending node on the decode work stack.
type decodeFrame struct {
	raw    json.RawMessage
	path   string
	parent *Node
	index  int
}

// Decode reads an export document from reader.
func Decode(reader io.Reader) (*Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	return DecodeBytes(data)
}

// DecodeBytes parses an export document, validating only structural
// well-formedness: a recognized version tag, a root node, and on every node an
// id, a type, and a children value that is an array when present. Unknown
// fields are preserved in Extra.
func DecodeBytes(data []byte) (*Document, error) {
	var envelope map[string]json.RawMessage

	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return nil, malformed("$", err)
	}

	if envelope == nil {
		return nil, malformed("$", ErrMissingRoot)
	}

	version, err := decodeVersion(envelope["version"])
	if err != nil {
		return nil, malformed("$.version", err)
	}

	doc := &Document{Version: version}

	if rawMeta, ok := envelope["metadata"]; ok && !isNull(rawMeta) {
		err = json.Unmarshal(rawMeta, &doc.Metadata)
		if err != nil {
			return nil, malformed("$.metadata", err)
		}
	}

	rawRoot, ok := envelope["document"]
	if !ok || isNull(rawRoot) {
		return nil, malformed("$.document", ErrMissingRoot)
	}

	doc.Root, err = decodeTree(rawRoot, "$.document")
	if err != nil {
		return nil, err
	}

	doc.Extra = extraFields(envelope, envelopeKeys)

	return doc, nil
}

func decodeVersion(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", fmt.Errorf("%w: version tag absent", ErrUnsupportedVersion)
	}

	var version string

	if json.Unmarshal(raw, &version) != nil {
		var numeric float64

		err := json.Unmarshal(raw, &numeric)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedVersion, string(raw))
		}

		version = strconv.FormatFloat(numeric, 'f', -1, 64)
	}

	if !slices.Contains(SupportedVersions, version) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}

	return version, nil
}

// decodeTree builds the node tree with an explicit work stack.
func decodeTree(rawRoot json.RawMessage, rootPath string) (*Node, error) {
	var root *Node

	stack := []decodeFrame{{raw: rawRoot, path: rootPath}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		decoded, rawChildren, err := decodeNode(frame.raw, frame.path)
		if err != nil {
			return nil, err
		}

		if frame.parent == nil {
			root = decoded
		} else {
			frame.parent.Children[frame.index] = decoded
		}

		if len(rawChildren) == 0 {
			continue
		}

		decoded.Children = make([]*Node, len(rawChildren))

		for idx := len(rawChildren) - 1; idx >= 0; idx-- {
			stack = append(stack, decodeFrame{
				raw:    rawChildren[idx],
				path:   frame.path + ".children[" + strconv.Itoa(idx) + "]",
				parent: decoded,
				index:  idx,
			})
		}
	}

	return root, nil
}

func decodeNode(raw json.RawMessage, path string) (*Node, []json.RawMessage, error) {
	var fields map[string]json.RawMessage

	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, nil, malformed(path, err)
	}

	if fields == nil {
		return nil, nil, malformed(path, fmt.Errorf("%w: node is null", ErrMissingField))
	}

	var wire wireNode

	err = json.Unmarshal(raw, &wire)
	if err != nil {
		return nil, nil, malformed(path, err)
	}

	if wire.ID == "" {
		return nil, nil, malformed(path, fmt.Errorf("%w: id", ErrMissingField))
	}

	if wire.Type == "" {
		return nil, nil, malformed(path, fmt.Errorf("%w: type", ErrMissingField))
	}

	var rawChildren []json.RawMessage

	if rawList, ok := fields["children"]; ok && !isNull(rawList) {
		err = json.Unmarshal(rawList, &rawChildren)
		if err != nil {
			return nil, nil, malformed(path+".children", ErrChildrenNotArray)
		}
	}

	return wire.toNode(extraFields(fields, nodeKeys)), rawChildren, nil
}

func (wire *wireNode) toNode(extra map[string]json.RawMessage) *Node {
	decoded := &Node{
		ID:           wire.ID,
		Name:         wire.Name,
		Type:         wire.Type,
		Visible:      true,
		Locked:       wire.Locked,
		Opacity:      1,
		CornerRadius: wire.CornerRadius,
		Fills:        wire.Fills,
		Strokes:      wire.Strokes,
		StrokeWeight: wire.StrokeWeight,
		Effects:      wire.Effects,
		Characters:   wire.Characters,
		Typography:   wire.Typography,
		Layout:       wire.Layout,
		ComponentID:  wire.ComponentID,
		Properties:   wire.Properties,
		Extra:        extra,
	}

	if wire.Visible != nil {
		decoded.Visible = *wire.Visible
	}

	if wire.Opacity != nil {
		decoded.Opacity = *wire.Opacity
	}

	switch {
	case wire.Geometry != nil:
		decoded.Bounds = *wire.Geometry
	case wire.AbsoluteBoundingBox != nil:
		decoded.Bounds = *wire.AbsoluteBoundingBox
	}

	return decoded
}

func extraFields(fields map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	var extra map[string]json.RawMessage

	for key, value := range fields {
		if slices.Contains(known, key) {
			continue
		}

		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}

		extra[key] = value
	}

	return extra
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
