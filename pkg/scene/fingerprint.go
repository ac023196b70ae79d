package scene

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Hash buffer size constants.
const (
	hashBufSize = 8
	colorFields = 4
)

// Fingerprint computes the content address of the subtree rooted at the node.
// The salt (normally the heuristics configuration digest) is hashed first, so
// a configuration change yields new fingerprints. Ids, x/y position, and
// unknown fields are excluded: two instances that look and read the same
// share a fingerprint wherever they sit in the document.
func Fingerprint(root *Node, salt string) string {
	hasher := sha256.New()

	writeString(hasher, salt)

	root.Walk(func(curr *Node) bool {
		writeNodeContentToHash(hasher, curr)

		return true
	})

	return hex.EncodeToString(hasher.Sum(nil))
}

// writeNodeContentToHash writes one node's semantic content. The child count
// is included so that pre-order serialization is unambiguous.
func writeNodeContentToHash(hasher hash.Hash, targetNode *Node) {
	writeString(hasher, targetNode.Name)
	writeString(hasher, string(targetNode.Type))
	writeBool(hasher, targetNode.Visible)
	writeFloat(hasher, targetNode.Bounds.Width)
	writeFloat(hasher, targetNode.Bounds.Height)
	writeFloat(hasher, targetNode.Opacity)
	writeFloat(hasher, targetNode.CornerRadius)
	writePaints(hasher, targetNode.Fills)
	writePaints(hasher, targetNode.Strokes)
	writeFloat(hasher, targetNode.StrokeWeight)
	writeEffects(hasher, targetNode.Effects)
	writeString(hasher, targetNode.Characters)
	writeProperties(hasher, targetNode)
	writeUint(hasher, uint64(len(targetNode.Children)))
}

func writePaints(hasher hash.Hash, paints []Paint) {
	writeUint(hasher, uint64(len(paints)))

	for _, paint := range paints {
		writeString(hasher, string(paint.Type))
		writeBool(hasher, paint.IsVisible())
		writeColor(hasher, paint.Color)

		opacity := 1.0
		if paint.Opacity != nil {
			opacity = *paint.Opacity
		}

		writeFloat(hasher, opacity)
	}
}

func writeEffects(hasher hash.Hash, effects []Effect) {
	writeUint(hasher, uint64(len(effects)))

	for _, effect := range effects {
		writeString(hasher, string(effect.Type))
		writeFloat(hasher, effect.Radius)
		writeFloat(hasher, effect.OffsetX)
		writeFloat(hasher, effect.OffsetY)
		writeColor(hasher, effect.Color)
	}
}

func writeProperties(hasher hash.Hash, targetNode *Node) {
	keys := targetNode.PropertyKeys()
	writeUint(hasher, uint64(len(keys)))

	for _, key := range keys {
		writeString(hasher, NormalizeKey(key))
		writeString(hasher, targetNode.Properties[key].String())
	}
}

func writeColor(hasher hash.Hash, color *Color) {
	if color == nil {
		writeBool(hasher, false)

		return
	}

	writeBool(hasher, true)

	for _, channel := range [colorFields]float64{color.R, color.G, color.B, color.A} {
		writeFloat(hasher, channel)
	}
}

func writeString(hasher hash.Hash, value string) {
	writeUint(hasher, uint64(len(value)))
	hasher.Write([]byte(value))
}

func writeFloat(hasher hash.Hash, value float64) {
	writeUint(hasher, math.Float64bits(value))
}

func writeBool(hasher hash.Hash, value bool) {
	if value {
		hasher.Write([]byte{1})

		return
	}

	hasher.Write([]byte{0})
}

func writeUint(hasher hash.Hash, value uint64) {
	buf := make([]byte, hashBufSize)
	binary.LittleEndian.PutUint64(buf, value)
	hasher.Write(buf)
}
