package tokens

import (
	"errors"

	"github.com/ramworld21/sda-auditor/style"
)

var (
	ErrNoColors  = errors.New("design tokens define no colors")
	ErrNoSpacing = errors.New("design tokens define no spacing values")
)

// Color is a named palette entry, e.g. "primary.600".
type Color struct {
	Name  string    `json:"name"`
	Value style.RGB `json:"value"`
}

// Typography describes the brand font.
type Typography struct {
	Brand    string   `json:"brand"`
	Patterns []string `json:"patterns"`
	Probes   []string `json:"probes"`
}

// DesignTokens is the reference set a page is compared against. It is
// immutable after construction and safe to share between concurrent scans.
type DesignTokens struct {
	name       string
	colors     []Color
	spacing    []int
	typography Typography
}

// New validates and copies its inputs. Colors keep their order: matching ties
// go to the earlier entry.
func New(name string, colors []Color, spacing []int, typography Typography) (*DesignTokens, error) {
	if len(colors) == 0 {
		return nil, ErrNoColors
	}
	if len(spacing) == 0 {
		return nil, ErrNoSpacing
	}

	if len(typography.Patterns) == 0 {
		typography.Patterns = style.DefaultFontPatterns
	}
	if len(typography.Probes) == 0 {
		typography.Probes = style.DefaultFontProbeNames
	}
	if typography.Brand == "" {
		typography.Brand = "IBM Plex"
	}

	return &DesignTokens{
		name:    name,
		colors:  append([]Color(nil), colors...),
		spacing: append([]int(nil), spacing...),
		typography: Typography{
			Brand:    typography.Brand,
			Patterns: append([]string(nil), typography.Patterns...),
			Probes:   append([]string(nil), typography.Probes...),
		},
	}, nil
}

func (t *DesignTokens) Name() string { return t.name }

// Colors returns a copy of the named palette.
func (t *DesignTokens) Colors() []Color {
	return append([]Color(nil), t.colors...)
}

// Palette returns the palette values in token order.
func (t *DesignTokens) Palette() []style.RGB {
	out := make([]style.RGB, len(t.colors))
	for i, c := range t.colors {
		out[i] = c.Value
	}
	return out
}

// Spacing returns a copy of the spacing scale in px.
func (t *DesignTokens) Spacing() []int {
	return append([]int(nil), t.spacing...)
}

func (t *DesignTokens) Typography() Typography {
	return Typography{
		Brand:    t.typography.Brand,
		Patterns: append([]string(nil), t.typography.Patterns...),
		Probes:   append([]string(nil), t.typography.Probes...),
	}
}
