package detect

import (
	"regexp"
	"strings"
)

var searchKeywords = []string{"search", "بحث", "ابحث", "query", "keyword", "find"}

// magnifierPathRe matches the handle segment of the magnifier glyphs shipped
// by the common icon sets (feather, heroicons, material).
var magnifierPathRe = regexp.MustCompile(`(?i)(m\s*21[\s,]+21(?:[^\d.]|$))|(4\.35[\s,]*-\s*4\.35)|(m\s*15\.5\s+14)`)

const (
	searchExplicitConfidence   = 95
	searchHeaderIconConfidence = 75
	searchLoneIconConfidence   = 60
)

// DetectSearchBar looks for a search input first and falls back to icon-only
// search controls that reveal their input on click.
func DetectSearchBar(p *Page) Signal {
	sig := Absent()

	for _, f := range p.Forms {
		if strings.EqualFold(strings.TrimSpace(f.Role), "search") {
			sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidenceAttribute, Detail: "form[role=search]", Value: f.Action})
		}
	}

	for _, in := range p.Inputs {
		if ev, ok := searchInputEvidence(in); ok {
			sig.Evidence = append(sig.Evidence, ev)
		}
	}

	if len(sig.Evidence) > 0 {
		sig.Present = true
		sig.ConfidenceScore = searchExplicitConfidence
		sig.Reason = "search input"
		return sig
	}

	best := 0
	for _, ic := range p.Icons {
		if !ic.Visible || !ic.InClickable {
			continue
		}
		detail, ok := searchIconEvidence(ic)
		if !ok {
			continue
		}

		var conf int
		switch {
		case ic.InHeaderNav:
			conf = searchHeaderIconConfidence
		case ic.OnlyContent:
			conf = searchLoneIconConfidence
		default:
			continue
		}

		sig.Evidence = append(sig.Evidence, Evidence{Kind: kindForIcon(ic), Detail: detail, Value: firstNonEmpty(ic.AriaLabel, ic.ContainerLabel, ic.Title, ic.Class)})
		if conf > best {
			best = conf
		}
	}

	if best > 0 {
		sig.Present = true
		sig.ConfidenceScore = best
		sig.Reason = "search icon control"
	}
	return sig
}

func searchInputEvidence(in Input) (Evidence, bool) {
	typ := strings.ToLower(strings.TrimSpace(in.Type))
	if typ == "search" {
		return Evidence{Kind: EvidenceAttribute, Detail: "input[type=search]", Value: in.Name}, true
	}
	if strings.EqualFold(strings.TrimSpace(in.Autocomplete), "search") {
		return Evidence{Kind: EvidenceAttribute, Detail: "input[autocomplete=search]", Value: in.Name}, true
	}
	if typ != "" && typ != "text" {
		return Evidence{}, false
	}

	attrs := []struct {
		name, value string
	}{
		{"name", in.Name},
		{"id", in.ID},
		{"placeholder", in.Placeholder},
		{"aria-label", in.AriaLabel},
	}
	for _, a := range attrs {
		if kw, ok := containsAny(a.value, searchKeywords); ok {
			return Evidence{Kind: EvidenceAttribute, Detail: "input " + a.name + " contains " + kw, Value: a.value}, true
		}
	}
	if strings.EqualFold(in.Name, "q") || strings.EqualFold(in.Name, "s") {
		return Evidence{Kind: EvidenceAttribute, Detail: "input name is a query parameter", Value: in.Name}, true
	}
	return Evidence{}, false
}

func searchIconEvidence(ic Icon) (string, bool) {
	fields := []struct {
		name, value string
	}{
		{"class", ic.Class},
		{"id", ic.ID},
		{"aria-label", ic.AriaLabel},
		{"container label", ic.ContainerLabel},
		{"title", ic.Title},
		{"text", ic.Text},
	}
	for _, f := range fields {
		if kw, ok := containsAny(f.value, searchKeywords); ok {
			return "icon " + f.name + " contains " + kw, true
		}
	}
	if ic.Tag == "svg" && ic.PathData != "" && magnifierPathRe.MatchString(ic.PathData) {
		return "magnifier svg path", true
	}
	return "", false
}

func kindForIcon(ic Icon) EvidenceKind {
	if ic.Tag == "svg" {
		return EvidenceSVG
	}
	return EvidenceAttribute
}
