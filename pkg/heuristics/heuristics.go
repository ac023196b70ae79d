// Package heuristics holds the tunable configuration shared by the classifier
// and the property extractor: confidence floor, rule weights, size buckets,
// variant palettes, and inference policies. Its digest is part of every cache
// fingerprint, so changing any value invalidates previously cached results.
package heuristics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Default values.
const (
	DefaultVersion         = "2025.1"
	DefaultConfidenceFloor = 0.3
	DefaultDisabledOpacity = 0.5
	DefaultColorTolerance  = 0.03
	DefaultSize            = "default"
	DefaultVariant         = "default"
)

// Palette targets.
const (
	TargetFill   = "fill"
	TargetStroke = "stroke"
)

// hexColorLen is the length of "#rrggbb".
const hexColorLen = 7

// Sentinel errors.
var (
	ErrInvalidFloor      = errors.New("confidence_floor must be within [0,1]")
	ErrInvalidOpacity    = errors.New("disabled_opacity must be within [0,1]")
	ErrInvalidBuckets    = errors.New("size buckets must start at 0 and ascend strictly")
	ErrInvalidColor      = errors.New("invalid hex color")
	ErrInvalidTarget     = errors.New("palette target must be fill or stroke")
	ErrInvalidWeight     = errors.New("rule weight must be non-negative")
	ErrEmptyVariantNames = errors.New("variant_names must not be empty")
)

// SizeBucket is a named height range starting at MinHeight (inclusive).
type SizeBucket struct {
	Name      string  `json:"name"       yaml:"name"`
	MinHeight float64 `json:"min_height" yaml:"min_height"`
}

// Palette associates solid colors with a variant.
type Palette struct {
	Variant string   `json:"variant" yaml:"variant"`
	Target  string   `json:"target"  yaml:"target"`
	Colors  []string `json:"colors"  yaml:"colors"`
}

// Config is the heuristic configuration.
type Config struct {
	Version          string                          `json:"version"            yaml:"version"`
	ConfidenceFloor  float64                         `json:"confidence_floor"   yaml:"confidence_floor"`
	DisabledOpacity  float64                         `json:"disabled_opacity"   yaml:"disabled_opacity"`
	VariantFromText  bool                            `json:"variant_from_text"  yaml:"variant_from_text"`
	ColorTolerance   float64                         `json:"color_tolerance"    yaml:"color_tolerance"`
	Weights          map[string]float64              `json:"weights"            yaml:"weights"`
	SizeBuckets      map[component.Type][]SizeBucket `json:"size_buckets"       yaml:"size_buckets"`
	VariantNames     []string                        `json:"variant_names"      yaml:"variant_names"`
	Palettes         []Palette                       `json:"palettes"           yaml:"palettes"`
	TextSlots        map[component.Type][]string     `json:"text_slots"         yaml:"text_slots"`
	DefaultTextSlots []string                        `json:"default_text_slots" yaml:"default_text_slots"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:         DefaultVersion,
		ConfidenceFloor: DefaultConfidenceFloor,
		DisabledOpacity: DefaultDisabledOpacity,
		VariantFromText: true,
		ColorTolerance:  DefaultColorTolerance,
		Weights:         map[string]float64{},
		SizeBuckets: map[component.Type][]SizeBucket{
			component.Button: {{"xs", 0}, {"sm", 36}, {"default", 40}, {"lg", 44}},
			component.Input:  {{"sm", 0}, {"default", 40}, {"lg", 44}},
			component.Select: {{"sm", 0}, {"default", 40}, {"lg", 44}},
			component.Badge:  {{"default", 0}, {"lg", 24}},
		},
		VariantNames: []string{"default", "primary", "secondary", "destructive", "outline", "ghost", "link"},
		Palettes: []Palette{
			{Variant: "destructive", Target: TargetFill, Colors: []string{"#ef4444", "#dc2626", "#b91c1c"}},
			{Variant: "secondary", Target: TargetFill, Colors: []string{"#f4f4f5", "#e4e4e7"}},
			{Variant: "default", Target: TargetFill, Colors: []string{"#18181b", "#09090b", "#0f172a"}},
			{Variant: "outline", Target: TargetStroke, Colors: []string{"#e4e4e7", "#d4d4d8", "#e2e8f0"}},
		},
		TextSlots: map[component.Type][]string{
			component.Input:    {"placeholder", "value", "label"},
			component.Textarea: {"placeholder", "value", "label"},
			component.Select:   {"value", "placeholder", "label"},
			component.Card:     {"title", "heading", "text"},
			component.Dialog:   {"title", "heading", "text"},
			component.Alert:    {"title", "description", "text"},
		},
		DefaultTextSlots: []string{"text", "label", "title", "placeholder", "value"},
	}
}

// Load reads a YAML configuration from path. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heuristics: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML configuration on top of [Default] and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse heuristics: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and bucket ordering.
func (cfg *Config) Validate() error {
	if cfg.ConfidenceFloor < 0 || cfg.ConfidenceFloor > 1 {
		return ErrInvalidFloor
	}

	if cfg.DisabledOpacity < 0 || cfg.DisabledOpacity > 1 {
		return ErrInvalidOpacity
	}

	if len(cfg.VariantNames) == 0 {
		return ErrEmptyVariantNames
	}

	for rule, weight := range cfg.Weights {
		if weight < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidWeight, rule)
		}
	}

	for componentType, buckets := range cfg.SizeBuckets {
		if !validBuckets(buckets) {
			return fmt.Errorf("%w: %s", ErrInvalidBuckets, componentType)
		}
	}

	for _, palette := range cfg.Palettes {
		if palette.Target != TargetFill && palette.Target != TargetStroke {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, palette.Target)
		}

		for _, hexColor := range palette.Colors {
			_, err := ParseHexColor(hexColor)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func validBuckets(buckets []SizeBucket) bool {
	if len(buckets) == 0 || buckets[0].MinHeight != 0 {
		return false
	}

	for idx := 1; idx < len(buckets); idx++ {
		if buckets[idx].MinHeight <= buckets[idx-1].MinHeight {
			return false
		}
	}

	return true
}

// Digest returns a stable content hash of the configuration.
func (cfg *Config) Digest() string {
	// Maps marshal with sorted keys, so the encoding is canonical.
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return cfg.Version
	}

	sum := sha256.Sum256(encoded)

	return cfg.Version + ":" + hex.EncodeToString(sum[:8])
}

// Weight returns the configured override for rule, or fallback.
func (cfg *Config) Weight(rule string, fallback float64) float64 {
	if weight, ok := cfg.Weights[rule]; ok {
		return weight
	}

	return fallback
}

// TextSlotsFor returns the property-name fragments that hold display text for
// componentType.
func (cfg *Config) TextSlotsFor(componentType component.Type) []string {
	if slots, ok := cfg.TextSlots[componentType]; ok && len(slots) > 0 {
		return slots
	}

	return cfg.DefaultTextSlots
}

// SizeFor buckets height for componentType. Lower bounds are inclusive, so a
// height equal to a boundary lands in the larger bucket. Types without
// buckets always get [DefaultSize]. The second result is false in that case.
func (cfg *Config) SizeFor(componentType component.Type, height float64) (string, bool) {
	buckets, ok := cfg.SizeBuckets[componentType]
	if !ok || len(buckets) == 0 {
		return DefaultSize, false
	}

	size := buckets[0].Name

	for _, bucket := range buckets {
		if height >= bucket.MinHeight {
			size = bucket.Name
		}
	}

	return size, true
}

// IsVariantName reports whether text names a known variant, case-insensitively,
// and returns its canonical spelling.
func (cfg *Config) IsVariantName(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, name := range cfg.VariantNames {
		if strings.ToLower(name) == normalized {
			return name, true
		}
	}

	return "", false
}

// MatchPalette returns the first palette whose colors match one of the
// node's visible solid paints on the palette's target.
func (cfg *Config) MatchPalette(targetNode *scene.Node) (Palette, bool) {
	for _, palette := range cfg.Palettes {
		paints := targetNode.Fills
		if palette.Target == TargetStroke {
			paints = targetNode.Strokes
		}

		for _, paint := range paints {
			if paint.Type != scene.PaintSolid || paint.Color == nil || !paint.IsVisible() {
				continue
			}

			if cfg.paletteContains(palette, *paint.Color) {
				return palette, true
			}
		}
	}

	return Palette{}, false
}

func (cfg *Config) paletteContains(palette Palette, color scene.Color) bool {
	for _, hexColor := range palette.Colors {
		candidate, err := ParseHexColor(hexColor)
		if err != nil {
			continue
		}

		if closeChannels(candidate, color, cfg.ColorTolerance) {
			return true
		}
	}

	return false
}

func closeChannels(left, right scene.Color, tolerance float64) bool {
	return math.Abs(left.R-right.R) <= tolerance &&
		math.Abs(left.G-right.G) <= tolerance &&
		math.Abs(left.B-right.B) <= tolerance
}

// ParseHexColor parses "#rrggbb" into an opaque color.
func ParseHexColor(value string) (scene.Color, error) {
	if len(value) != hexColorLen || value[0] != '#' {
		return scene.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}

	channels := [3]float64{}

	for idx := range channels {
		parsed, err := strconv.ParseUint(value[1+idx*2:3+idx*2], 16, 8)
		if err != nil {
			return scene.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, value)
		}

		channels[idx] = float64(parsed) / math.MaxUint8
	}

	return scene.Color{R: channels[0], G: channels[1], B: channels[2], A: 1}, nil
}
