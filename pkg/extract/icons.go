package extract

import (
	"strings"
	"unicode"
)

// IconStatus tells how an icon layer name resolved.
type IconStatus string

// Icon status constants.
const (
	// IconKnown resolved to a canonical identifier.
	IconKnown IconStatus = "known"
	// IconPlaceholder is the neutral glyph designers use for "no icon here".
	IconPlaceholder IconStatus = "placeholder"
	// IconUnknown is an icon layer whose name is not in the lookup table.
	IconUnknown IconStatus = "unknown"
)

// Placement is the position of an icon relative to the label.
type Placement string

// Placement constants.
const (
	PlacementLeft  Placement = "left"
	PlacementRight Placement = "right"
	// PlacementStandalone marks icons of a node without a label.
	PlacementStandalone Placement = "standalone"
)

// LoadingIcon is the canonical identifier that implies a loading state.
const LoadingIcon = "Loader2"

// iconPrefix is the layer-name head that marks an icon instance.
const iconPrefix = "icon"

// Icon is a reference to an icon layer. Name is nil for placeholders and for
// unknown icons; Raw always keeps the name found in the layer.
type Icon struct {
	Name      *string    `json:"name"`
	Raw       string     `json:"raw"`
	Status    IconStatus `json:"status"`
	Placement Placement  `json:"placement,omitempty"`
	NodeID    string     `json:"nodeId,omitempty"`
}

// Identifier returns the canonical name, or "" for placeholder and unknown icons.
func (icon Icon) Identifier() string {
	if icon.Name == nil {
		return ""
	}

	return *icon.Name
}

// placeholderKeys resolve to [IconPlaceholder].
var placeholderKeys = []string{"circle", "placeholder", "empty", "blank"}

// iconTable maps squashed lower-case names to canonical identifiers.
var iconTable = map[string]string{
	"send": "Send", "paperplane": "Send",
	"arrowright": "ArrowRight", "arrowleft": "ArrowLeft", "arrowup": "ArrowUp", "arrowdown": "ArrowDown",
	"chevrondown": "ChevronDown", "chevronup": "ChevronUp",
	"chevronright": "ChevronRight", "chevronleft": "ChevronLeft",
	"check": "Check", "checkmark": "Check", "tick": "Check",
	"x": "X", "close": "X", "cross": "X",
	"plus": "Plus", "add": "Plus", "minus": "Minus", "remove": "Minus",
	"search": "Search", "magnifyingglass": "Search",
	"mail": "Mail", "email": "Mail", "envelope": "Mail",
	"loader": "Loader2", "loader2": "Loader2", "spinner": "Loader2", "loading": "Loader2",
	"trash": "Trash", "trash2": "Trash", "delete": "Trash", "bin": "Trash",
	"settings": "Settings", "gear": "Settings", "cog": "Settings",
	"user": "User", "person": "User", "profile": "User",
	"info": "Info", "information": "Info",
	"alertcircle": "AlertCircle", "warning": "AlertCircle", "alerttriangle": "AlertTriangle",
	"eye": "Eye", "eyeoff": "EyeOff",
	"download": "Download", "upload": "Upload",
	"heart": "Heart", "star": "Star", "home": "Home", "house": "Home",
	"menu": "Menu", "hamburger": "Menu",
	"calendar": "Calendar", "bell": "Bell", "notification": "Bell",
	"copy": "Copy", "externallink": "ExternalLink",
	"filter": "Filter", "edit": "Pencil", "pencil": "Pencil",
	"lock": "Lock", "unlock": "Unlock", "logout": "LogOut", "login": "LogIn",
	"morehorizontal": "MoreHorizontal", "ellipsis": "MoreHorizontal",
	"share": "Share", "link": "Link", "image": "Image", "refresh": "RefreshCw",
}

// ParseIconName reports whether layerName follows the "Icon / {Name}"
// convention and returns {Name}.
func ParseIconName(layerName string) (string, bool) {
	head, rest, found := strings.Cut(layerName, "/")
	if !found || strings.ToLower(strings.TrimSpace(head)) != iconPrefix {
		return "", false
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}

	return rest, true
}

// NormalizeIcon resolves an icon name through the fixed lookup table. It is a
// total function: every input yields a known, placeholder, or unknown icon.
func NormalizeIcon(raw string) Icon {
	key := squash(raw)

	for _, placeholder := range placeholderKeys {
		if key == placeholder {
			return Icon{Raw: raw, Status: IconPlaceholder}
		}
	}

	if canonical, ok := iconTable[key]; ok {
		return Icon{Name: &canonical, Raw: raw, Status: IconKnown}
	}

	return Icon{Raw: raw, Status: IconUnknown}
}

// NormalizeIconLayer applies [ParseIconName] and [NormalizeIcon]. The second
// result is false when layerName is not an icon layer.
func NormalizeIconLayer(layerName string) (Icon, bool) {
	raw, ok := ParseIconName(layerName)
	if !ok {
		return Icon{}, false
	}

	return NormalizeIcon(raw), true
}

// squash lower-cases and drops everything but letters and digits.
// "Arrow-Right 2" → "arrowright2".
func squash(name string) string {
	var builder strings.Builder

	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}
