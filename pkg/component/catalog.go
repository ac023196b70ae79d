// Package component defines the closed catalog of UI component types the
// classifier can assign. Declaration order is significant: it breaks score
// ties, earlier types winning.
package component

import (
	"slices"
	"strings"
)

// Type is a component-type tag.
type Type string

// Catalog types in declaration order.
const (
	Button   Type = "Button"
	Card     Type = "Card"
	Dialog   Type = "Dialog"
	Input    Type = "Input"
	Textarea Type = "Textarea"
	Checkbox Type = "Checkbox"
	Switch   Type = "Switch"
	Select   Type = "Select"
	Tabs     Type = "Tabs"
	Badge    Type = "Badge"
	Avatar   Type = "Avatar"
	Alert    Type = "Alert"
	Tooltip  Type = "Tooltip"
	Icon     Type = "Icon"
)

// Container is the terminal classification for nodes that no catalog type
// claims with enough confidence.
const Container Type = "Container"

// Entry describes one catalog type.
type Entry struct {
	Type    Type
	Aliases []string
}

// catalog lists every type with the lower-case aliases recognized in names.
var catalog = []Entry{
	{Type: Button, Aliases: []string{"button", "btn", "cta", "icon button"}},
	{Type: Card, Aliases: []string{"card", "panel", "tile"}},
	{Type: Dialog, Aliases: []string{"dialog", "modal", "sheet", "popup"}},
	{Type: Input, Aliases: []string{"input", "text field", "textfield", "field", "search"}},
	{Type: Textarea, Aliases: []string{"textarea", "text area", "multiline"}},
	{Type: Checkbox, Aliases: []string{"checkbox", "check box"}},
	{Type: Switch, Aliases: []string{"switch", "toggle"}},
	{Type: Select, Aliases: []string{"select", "dropdown", "combobox", "picker"}},
	{Type: Tabs, Aliases: []string{"tabs", "tab bar", "tabbar", "segmented control"}},
	{Type: Badge, Aliases: []string{"badge", "chip", "tag", "pill"}},
	{Type: Avatar, Aliases: []string{"avatar", "profile picture"}},
	{Type: Alert, Aliases: []string{"alert", "banner", "callout", "toast"}},
	{Type: Tooltip, Aliases: []string{"tooltip", "hint"}},
	{Type: Icon, Aliases: []string{"icon"}},
}

// All returns the catalog types in declaration order.
func All() []Type {
	types := make([]Type, len(catalog))

	for idx, entry := range catalog {
		types[idx] = entry.Type
	}

	return types
}

// Entries returns the catalog entries in declaration order.
func Entries() []Entry {
	return slices.Clone(catalog)
}

// Rank returns the declaration index of componentType, or len(catalog) for
// types outside the catalog (including Container).
func Rank(componentType Type) int {
	for idx, entry := range catalog {
		if entry.Type == componentType {
			return idx
		}
	}

	return len(catalog)
}

// Lookup returns the entry for componentType.
func Lookup(componentType Type) (Entry, bool) {
	for _, entry := range catalog {
		if entry.Type == componentType {
			return entry, true
		}
	}

	return Entry{}, false
}

// Parse resolves a canonical name or alias, case-insensitively.
func Parse(name string) (Type, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	if normalized == strings.ToLower(string(Container)) {
		return Container, true
	}

	for _, entry := range catalog {
		if normalized == strings.ToLower(string(entry.Type)) || slices.Contains(entry.Aliases, normalized) {
			return entry.Type, true
		}
	}

	return "", false
}

// Canonical returns the lower-case canonical name used in name matching.
func (componentType Type) Canonical() string {
	return strings.ToLower(string(componentType))
}

// IsCatalog reports whether the type belongs to the catalog.
func (componentType Type) IsCatalog() bool {
	return Rank(componentType) < len(catalog)
}
