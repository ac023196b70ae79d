package scene

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PropertyKind tags a component-instance property value.
type PropertyKind string

// Property kind constants.
const (
	KindText         PropertyKind = "TEXT"
	KindBoolean      PropertyKind = "BOOLEAN"
	KindInstanceSwap PropertyKind = "INSTANCE_SWAP"
	KindVariant      PropertyKind = "VARIANT"
)

// PropertyValue is a tagged component property value. TEXT and VARIANT carry
// text, BOOLEAN carries a flag, INSTANCE_SWAP carries the swapped component id.
// Values of unknown kinds keep their raw JSON.
type PropertyValue struct {
	kind PropertyKind
	text string
	flag bool
	raw  json.RawMessage
}

// TextValue builds a TEXT property value.
func TextValue(text string) PropertyValue {
	return PropertyValue{kind: KindText, text: text}
}

// VariantValue builds a VARIANT property value.
func VariantValue(text string) PropertyValue {
	return PropertyValue{kind: KindVariant, text: text}
}

// BoolValue builds a BOOLEAN property value.
func BoolValue(flag bool) PropertyValue {
	return PropertyValue{kind: KindBoolean, flag: flag}
}

// InstanceSwapValue builds an INSTANCE_SWAP property value.
func InstanceSwapValue(componentID string) PropertyValue {
	return PropertyValue{kind: KindInstanceSwap, text: componentID}
}

// Kind returns the value tag.
func (value PropertyValue) Kind() PropertyKind {
	return value.kind
}

// Text returns the text of a TEXT or VARIANT value.
func (value PropertyValue) Text() (string, bool) {
	if value.kind == KindText || value.kind == KindVariant {
		return value.text, true
	}

	return "", false
}

// Bool returns the flag of a BOOLEAN value.
func (value PropertyValue) Bool() (flag, ok bool) {
	if value.kind == KindBoolean {
		return value.flag, true
	}

	return false, false
}

// InstanceID returns the component id of an INSTANCE_SWAP value.
func (value PropertyValue) InstanceID() (string, bool) {
	if value.kind == KindInstanceSwap {
		return value.text, true
	}

	return "", false
}

// String renders the value canonically; it is used for fingerprinting.
func (value PropertyValue) String() string {
	switch value.kind {
	case KindBoolean:
		return string(value.kind) + ":" + strconv.FormatBool(value.flag)
	case KindText, KindVariant, KindInstanceSwap:
		return string(value.kind) + ":" + value.text
	default:
		return string(value.kind) + ":" + string(value.raw)
	}
}

type wireProperty struct {
	Type  PropertyKind    `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value in the export's `{type, value}` shape.
func (value PropertyValue) MarshalJSON() ([]byte, error) {
	wire := wireProperty{Type: value.kind}

	var (
		encoded []byte
		err     error
	)

	switch value.kind {
	case KindBoolean:
		encoded, err = json.Marshal(value.flag)
	case KindText, KindVariant, KindInstanceSwap:
		encoded, err = json.Marshal(value.text)
	default:
		encoded = value.raw
	}

	if err != nil {
		return nil, fmt.Errorf("encode property value: %w", err)
	}

	if len(encoded) == 0 {
		encoded = json.RawMessage("null")
	}

	wire.Value = encoded

	return json.Marshal(wire)
}

// UnmarshalJSON decodes the export's `{type, value}` shape. BOOLEAN values
// exported as the strings "true"/"false" are accepted.
func (value *PropertyValue) UnmarshalJSON(data []byte) error {
	var wire wireProperty

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("decode property value: %w", err)
	}

	value.kind = wire.Type
	value.raw = nil

	switch wire.Type {
	case KindBoolean:
		return value.decodeFlag(wire.Value)
	case KindText, KindVariant, KindInstanceSwap:
		return value.decodeText(wire.Value)
	default:
		value.raw = append(json.RawMessage(nil), wire.Value...)

		return nil
	}
}

func (value *PropertyValue) decodeFlag(data json.RawMessage) error {
	var flag bool

	if json.Unmarshal(data, &flag) == nil {
		value.flag = flag

		return nil
	}

	var text string

	err := json.Unmarshal(data, &text)
	if err != nil {
		return fmt.Errorf("%w: boolean property value %s", ErrPropertyValue, string(data))
	}

	flag, err = strconv.ParseBool(text)
	if err != nil {
		return fmt.Errorf("%w: boolean property value %q", ErrPropertyValue, text)
	}

	value.flag = flag

	return nil
}

func (value *PropertyValue) decodeText(data json.RawMessage) error {
	var text string

	if json.Unmarshal(data, &text) == nil {
		value.text = text

		return nil
	}

	// Numbers and booleans are kept in their literal JSON spelling.
	var scalar any

	err := json.Unmarshal(data, &scalar)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPropertyValue, string(data))
	}

	switch scalar.(type) {
	case float64, bool, nil:
		value.text = string(data)
		if scalar == nil {
			value.text = ""
		}

		return nil
	default:
		return fmt.Errorf("%w: non-scalar text value", ErrPropertyValue)
	}
}
