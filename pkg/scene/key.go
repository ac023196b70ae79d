package scene

import (
	"strings"
	"unicode"
)

// NormalizeKey reduces an exported property key to its semantic name: the
// trailing "#…" decoration is removed, whitespace runs collapse to a single
// space, and the result is lower-cased. "Button Text#1:4" → "button text".
func NormalizeKey(key string) string {
	if idx := strings.LastIndexByte(key, '#'); idx >= 0 {
		key = key[:idx]
	}

	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}

// CamelKey converts an exported property key into a lowerCamel identifier.
// "Show Left Icon#3:0" → "showLeftIcon".
func CamelKey(key string) string {
	words := strings.FieldsFunc(NormalizeKey(key), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var builder strings.Builder

	for idx, word := range words {
		if idx == 0 {
			builder.WriteString(word)

			continue
		}

		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		builder.WriteString(string(runes))
	}

	return builder.String()
}

// Tokens splits a display name into lower-case alphanumeric tokens.
// "Button / Primary-Large" → ["button", "primary", "large"].
func Tokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
