package scene

import (
	"slices"
	"strings"
)

// defaultStackCap is the initial capacity of traversal work stacks.
const defaultStackCap = 64

// IsInstance reports whether the node is a component instance.
func (targetNode *Node) IsInstance() bool {
	return targetNode != nil && targetNode.Type == TypeInstance
}

// IsText reports whether the node is a text layer.
func (targetNode *Node) IsText() bool {
	return targetNode != nil && targetNode.Type == TypeText
}

// AspectRatio returns width divided by height, or 0 when the height is zero.
func (targetNode *Node) AspectRatio() float64 {
	if targetNode.Bounds.Height <= 0 {
		return 0
	}

	return targetNode.Bounds.Width / targetNode.Bounds.Height
}

// Walk visits the subtree rooted at the node in pre-order. When fn returns
// false the children of the visited node are skipped. Traversal uses an
// explicit stack, so depth is bounded only by memory.
func (targetNode *Node) Walk(fn func(*Node) bool) {
	if targetNode == nil {
		return
	}

	stack := make([]*Node, 0, defaultStackCap)
	stack = append(stack, targetNode)

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if curr == nil {
			continue
		}

		if fn(curr) {
			pushReversedChildren(curr, &stack)
		}
	}
}

// Find returns all nodes in the subtree (including the node itself) for which
// predicate is true, in pre-order. Returns nil if the node is nil.
func (targetNode *Node) Find(predicate func(*Node) bool) []*Node {
	var result []*Node

	targetNode.Walk(func(curr *Node) bool {
		if predicate(curr) {
			result = append(result, curr)
		}

		return true
	})

	return result
}

// FirstDescendant returns the first strict descendant in pre-order that
// satisfies predicate, or nil.
func (targetNode *Node) FirstDescendant(predicate func(*Node) bool) *Node {
	if targetNode == nil {
		return nil
	}

	var found *Node

	targetNode.Walk(func(curr *Node) bool {
		if found != nil {
			return false
		}

		if curr != targetNode && predicate(curr) {
			found = curr

			return false
		}

		return true
	})

	return found
}

// OutermostInstances returns every INSTANCE node in the subtree that has no
// INSTANCE ancestor, in pre-order. The node itself qualifies when it is an
// instance.
func (targetNode *Node) OutermostInstances() []*Node {
	var result []*Node

	targetNode.Walk(func(curr *Node) bool {
		if curr.IsInstance() {
			result = append(result, curr)

			return false
		}

		return true
	})

	return result
}

// Instances returns every INSTANCE node in the subtree in pre-order.
func (targetNode *Node) Instances() []*Node {
	return targetNode.Find((*Node).IsInstance)
}

// Count returns the number of nodes in the subtree.
func (targetNode *Node) Count() int {
	total := 0

	targetNode.Walk(func(*Node) bool {
		total++

		return true
	})

	return total
}

// PropertyKeys returns the property keys sorted lexically, giving lookups a
// deterministic order independent of export insertion order.
func (targetNode *Node) PropertyKeys() []string {
	keys := make([]string, 0, len(targetNode.Properties))

	for key := range targetNode.Properties {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// Property returns the first property, in sorted key order, whose normalized
// key equals one of names. Names are compared after [NormalizeKey].
func (targetNode *Node) Property(names ...string) (string, PropertyValue, bool) {
	return targetNode.findProperty(names, func(key, name string) bool { return key == name })
}

// PropertyContaining returns the first property, in sorted key order, whose
// normalized key contains one of fragments.
func (targetNode *Node) PropertyContaining(fragments ...string) (string, PropertyValue, bool) {
	return targetNode.findProperty(fragments, strings.Contains)
}

func (targetNode *Node) findProperty(
	names []string, match func(key, name string) bool,
) (string, PropertyValue, bool) {
	if targetNode == nil || len(targetNode.Properties) == 0 {
		return "", PropertyValue{}, false
	}

	normalizedNames := make([]string, len(names))
	for idx, name := range names {
		normalizedNames[idx] = NormalizeKey(name)
	}

	for _, key := range targetNode.PropertyKeys() {
		normalized := NormalizeKey(key)

		for _, name := range normalizedNames {
			if match(normalized, name) {
				return key, targetNode.Properties[key], true
			}
		}
	}

	return "", PropertyValue{}, false
}

// VisibleSolidColors returns the colors of visible SOLID fills followed by
// visible SOLID strokes.
func (targetNode *Node) VisibleSolidColors() []Color {
	var colors []Color

	for _, paints := range [][]Paint{targetNode.Fills, targetNode.Strokes} {
		for _, paint := range paints {
			if paint.Type == PaintSolid && paint.Color != nil && paint.IsVisible() {
				colors = append(colors, *paint.Color)
			}
		}
	}

	return colors
}

func pushReversedChildren(targetNode *Node, stack *[]*Node) {
	children := targetNode.Children

	for idx := len(children) - 1; idx >= 0; idx-- {
		*stack = append(*stack, children[idx])
	}
}
