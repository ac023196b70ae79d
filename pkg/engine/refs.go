package engine

import (
	"maps"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/designmap/pkg/extract"
	"github.com/Sumatoshi-tech/designmap/pkg/mapping"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// childRefPrefix marks a child reference stored by position instead of id.
const childRefPrefix = "#"

// relativize replaces child node ids with positional references, so the
// cached analysis holds for every subtree with the same fingerprint.
func relativize(analysis Analysis, targetNode *scene.Node) Analysis {
	positions := make(map[string]string, len(targetNode.Children))

	for idx, child := range targetNode.Children {
		positions[child.ID] = childRefPrefix + strconv.Itoa(idx)
	}

	return rewriteRefs(analysis, func(id string) string {
		if ref, ok := positions[id]; ok {
			return ref
		}

		return id
	})
}

// bind resolves positional references against targetNode's children.
func bind(analysis Analysis, targetNode *scene.Node) Analysis {
	return rewriteRefs(analysis, func(ref string) string {
		position, ok := strings.CutPrefix(ref, childRefPrefix)
		if !ok {
			return ref
		}

		idx, err := strconv.Atoi(position)
		if err != nil || idx < 0 || idx >= len(targetNode.Children) {
			return ref
		}

		return targetNode.Children[idx].ID
	})
}

// rewriteRefs returns a copy of analysis with every child reference passed
// through rewrite. The input is not modified.
func rewriteRefs(analysis Analysis, rewrite func(string) string) Analysis {
	out := analysis

	if analysis.Properties.Icons != nil {
		out.Properties.Icons = make([]extract.Icon, len(analysis.Properties.Icons))

		for idx, icon := range analysis.Properties.Icons {
			if icon.NodeID != "" {
				icon.NodeID = rewrite(icon.NodeID)
			}

			out.Properties.Icons[idx] = icon
		}
	}

	out.Mapping.Slots = maps.Clone(analysis.Mapping.Slots)
	for slot, id := range out.Mapping.Slots {
		out.Mapping.Slots[slot] = rewrite(id)
	}

	if analysis.Mapping.Items != nil {
		out.Mapping.Items = make(map[string][]string, len(analysis.Mapping.Items))

		for slot, ids := range analysis.Mapping.Items {
			rewritten := make([]string, len(ids))
			for idx, id := range ids {
				rewritten[idx] = rewrite(id)
			}

			out.Mapping.Items[slot] = rewritten
		}
	}

	if analysis.Mapping.Unmapped != nil {
		out.Mapping.Unmapped = make([]mapping.Unmapped, len(analysis.Mapping.Unmapped))

		for idx, unmapped := range analysis.Mapping.Unmapped {
			unmapped.NodeID = rewrite(unmapped.NodeID)
			out.Mapping.Unmapped[idx] = unmapped
		}
	}

	return out
}
