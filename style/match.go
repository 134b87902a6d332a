package style

import (
	"math"
	"strconv"
	"strings"
)

// DefaultColorMatchThreshold is the RGB distance below which an observed color
// counts as a token match.
const DefaultColorMatchThreshold = 30.0

// SampleKind tags a StyleSample.
type SampleKind string

const (
	KindColor   SampleKind = "color"
	KindFont    SampleKind = "font"
	KindSpacing SampleKind = "spacing"
)

// StyleSample is one raw value read from a computed style during the DOM walk.
type StyleSample struct {
	Kind     SampleKind `json:"kind"`
	RawValue string     `json:"raw_value"`
	// SourceLimit is set when the walk stopped at its element cap.
	SourceLimit bool `json:"source_limit,omitempty"`
}

// ValuesOf returns the raw values of all samples of kind k, in order.
func ValuesOf(samples []StyleSample, k SampleKind) []string {
	var out []string
	for _, s := range samples {
		if s.Kind == k {
			out = append(out, s.RawValue)
		}
	}
	return out
}

// ColorJudgment compares one distinct observed color with the palette.
type ColorJudgment struct {
	Raw          string  `json:"raw"`
	Observed     RGB     `json:"observed"`
	NearestToken *RGB    `json:"nearest_token"`
	Distance     float64 `json:"distance"`
	IsMatch      bool    `json:"is_match"`
}

// ColorReport is the output of MatchColors.
type ColorReport struct {
	Judgments []ColorJudgment `json:"judgments"`
	Matches   int             `json:"matches"`
	// Accuracy is matches/total*100, or 0 when nothing was observed.
	Accuracy float64 `json:"accuracy"`
}

// JudgeColor finds the palette entry closest to c. Ties keep the earlier token.
func JudgeColor(c RGB, palette []RGB, threshold float64) ColorJudgment {
	j := ColorJudgment{Observed: c, Distance: math.Inf(1)}
	for i := range palette {
		d := Distance(c, palette[i])
		if d < j.Distance {
			tok := palette[i]
			j.Distance = d
			j.NearestToken = &tok
		}
	}
	if j.NearestToken == nil {
		j.Distance = 0
		return j
	}
	j.IsMatch = j.Distance < threshold
	return j
}

// MatchColors judges every distinct parsable color in observed. Transparent
// and unparsable values do not take part.
func MatchColors(observed []string, palette []RGB, threshold float64) ColorReport {
	seen := make(map[RGB]bool)
	var report ColorReport

	for _, raw := range observed {
		c, ok := ParseColor(raw)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true

		j := JudgeColor(c, palette, threshold)
		j.Raw = strings.TrimSpace(raw)
		if j.IsMatch {
			report.Matches++
		}
		report.Judgments = append(report.Judgments, j)
	}

	report.Accuracy = ColorAccuracy(report.Matches, len(report.Judgments))
	return report
}

// ColorAccuracy returns matches/total*100 and 0 for an empty set.
func ColorAccuracy(matches, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total) * 100
}

// SpacingJudgment is one unique spacing value checked against the scale.
type SpacingJudgment struct {
	ValuePx float64 `json:"value_px"`
	IsMatch bool    `json:"is_match"`
}

// SpacingReport is the output of MatchSpacing.
type SpacingReport struct {
	Judgments []SpacingJudgment `json:"judgments"`
	Matches   int               `json:"matches"`
	// Accuracy is nil when no measurable spacing value was observed.
	Accuracy *float64 `json:"accuracy"`
}

// NormalizePx converts a CSS length to pixels. Only positive "px" values are
// measurable; "0", "auto", negatives and other units report false.
func NormalizePx(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasSuffix(s, "px") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "px")), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// MatchSpacing dedupes the measurable values in raw and tests each one for exact
// membership in scale. Shorthand values ("8px 16px") are split into parts.
func MatchSpacing(raw []string, scale []int) SpacingReport {
	inScale := make(map[float64]bool, len(scale))
	for _, v := range scale {
		inScale[float64(v)] = true
	}

	seen := make(map[float64]bool)
	var report SpacingReport

	for _, r := range raw {
		for _, part := range strings.Fields(r) {
			v, ok := NormalizePx(part)
			if !ok || seen[v] {
				continue
			}
			seen[v] = true

			j := SpacingJudgment{ValuePx: v, IsMatch: inScale[v]}
			if j.IsMatch {
				report.Matches++
			}
			report.Judgments = append(report.Judgments, j)
		}
	}

	if len(report.Judgments) > 0 {
		acc := float64(report.Matches) / float64(len(report.Judgments)) * 100
		report.Accuracy = &acc
	}
	return report
}
