package style

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	// DefaultFontConfidenceThreshold is the sampled percentage at which the brand
	// font is considered in use even when the simple pass missed it.
	DefaultFontConfidenceThreshold = 30
	// probeConfidenceFloor is applied when the browser reports the font loaded.
	probeConfidenceFloor = 90
)

// DefaultFontPatterns match compact, hyphenated and spaced spellings of IBM Plex.
var DefaultFontPatterns = []string{
	`ibm[\s_-]?plex`,
}

// DefaultFontProbeNames are compared against the family of every loaded
// face in document.fonts.
var DefaultFontProbeNames = []string{
	"IBM Plex Sans Arabic",
	"IBM Plex Sans",
	"IBMPlexSansArabic",
	"IBM Plex Arabic",
}

// FontMatcher tests font family names against the brand patterns.
type FontMatcher struct {
	patterns []*regexp.Regexp
}

// NewFontMatcher compiles patterns case-insensitively. An empty list uses
// DefaultFontPatterns.
func NewFontMatcher(patterns []string) (*FontMatcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultFontPatterns
	}
	m := &FontMatcher{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid font pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether family matches any brand pattern.
func (m *FontMatcher) Match(family string) bool {
	for _, re := range m.patterns {
		if re.MatchString(family) {
			return true
		}
	}
	return false
}

// SplitFamilies breaks a computed font-family list into trimmed, unquoted names.
func SplitFamilies(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		name = strings.Trim(name, `"'`)
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// FontInput is what the page yields for font identity checks.
type FontInput struct {
	// Families are distinct computed font-family lists collected during the walk.
	Families []string `json:"families"`
	// Samples hold the font-family of each sampled visible text node.
	Samples []string `json:"samples"`
	// FontFaceAvailable is the result of the font-availability probe.
	FontFaceAvailable bool `json:"font_face_available"`
}

// FontJudgment is the combined verdict of both passes.
type FontJudgment struct {
	CollectedFamilies    []string `json:"collected_families"`
	SimpleMatch          bool     `json:"simple_match"`
	SampledConfidencePct int      `json:"sampled_confidence_pct"`
	SampleCount          int      `json:"sample_count"`
	FontFaceAvailable    bool     `json:"font_face_available"`
	FinalMatch           bool     `json:"final_match"`
}

// JudgeFont runs the simple and confidence passes. threshold is the sampled
// percentage required on its own; values <= 0 use the default.
func JudgeFont(in FontInput, m *FontMatcher, threshold int) FontJudgment {
	if threshold <= 0 {
		threshold = DefaultFontConfidenceThreshold
	}

	seen := make(map[string]bool)
	j := FontJudgment{CollectedFamilies: []string{}}
	for _, list := range in.Families {
		for _, fam := range SplitFamilies(list) {
			key := strings.ToLower(fam)
			if seen[key] {
				continue
			}
			seen[key] = true
			j.CollectedFamilies = append(j.CollectedFamilies, fam)
			if m.Match(fam) {
				j.SimpleMatch = true
			}
		}
	}

	j.SampleCount = len(in.Samples)
	if j.SampleCount > 0 {
		hits := 0
		for _, s := range in.Samples {
			if sampleMatches(s, m) {
				hits++
			}
		}
		j.SampledConfidencePct = int(math.Round(float64(hits) / float64(j.SampleCount) * 100))
	}

	j.FontFaceAvailable = in.FontFaceAvailable
	if j.FontFaceAvailable && j.SampledConfidencePct < probeConfidenceFloor {
		j.SampledConfidencePct = probeConfidenceFloor
	}

	sampled := j.SampleCount > 0 && j.SampledConfidencePct >= threshold
	j.FinalMatch = j.SimpleMatch || j.FontFaceAvailable || sampled
	return j
}

// sampleMatches checks the first resolvable family of a sampled node, which is
// the one the browser renders with when it is available.
func sampleMatches(list string, m *FontMatcher) bool {
	fams := SplitFamilies(list)
	if len(fams) == 0 {
		return false
	}
	return m.Match(fams[0])
}
