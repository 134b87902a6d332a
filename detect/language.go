package detect

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Language classifications.
const (
	LanguageTarget  = "target"
	LanguageMixed   = "mixed"
	LanguageOther   = "other"
	LanguageUnknown = "unknown"
)

// LanguageRules configures primary-language detection.
type LanguageRules struct {
	// Target is the expected primary language subtag, e.g. "ar".
	Target      string
	TargetRatio float64
	MixedRatio  float64
	// CharBudget caps how many non-space characters of page text are sampled.
	CharBudget int
}

func DefaultLanguageRules() LanguageRules {
	return LanguageRules{
		Target:      "ar",
		TargetRatio: 0.20,
		MixedRatio:  0.05,
		CharBudget:  5000,
	}
}

// LanguageSignal reports the page's primary language.
type LanguageSignal struct {
	Signal
	Language       string   `json:"language"`
	Classification string   `json:"classification"`
	ExplicitTag    string   `json:"explicit_tag,omitempty"`
	ScriptRatio    float64  `json:"script_ratio"`
	SampledChars   int      `json:"sampled_chars"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

var arabicSuggestions = []string{
	`Set <html lang="ar" dir="rtl"> on every page.`,
	"Serve Arabic as the default locale and offer other languages through a visible switcher.",
	"Translate navigation, headings and primary content into Arabic.",
	"Send Content-Language: ar for the default locale.",
}

// DetectLanguage prefers an explicit lang tag and otherwise classifies by the
// share of Arabic-script characters in the visible text sample.
func DetectLanguage(p *Page, rules LanguageRules) LanguageSignal {
	def := DefaultLanguageRules()
	if rules.Target == "" {
		rules.Target = def.Target
	}
	if rules.TargetRatio <= 0 {
		rules.TargetRatio = def.TargetRatio
	}
	if rules.MixedRatio <= 0 {
		rules.MixedRatio = def.MixedRatio
	}
	if rules.CharBudget <= 0 {
		rules.CharBudget = def.CharBudget
	}

	out := LanguageSignal{Signal: Absent()}

	tag := primarySubtag(p.Lang)
	source := "html lang"
	if tag == "" {
		tag = primarySubtag(p.ContentLanguage)
		source = "content-language"
	}
	if tag == "" {
		tag = primarySubtag(p.MetaContent("content-language"))
	}
	out.ExplicitTag = tag

	if tag != "" && tag == strings.ToLower(rules.Target) {
		out.Language = tag
		out.Classification = LanguageTarget
		out.Present = true
		out.ConfidenceScore = 100
		out.Evidence = append(out.Evidence, Evidence{Kind: EvidenceAttribute, Detail: source, Value: tag})
		out.Reason = "explicit language tag"
		return out
	}

	ratio, sampled := arabicRatio(p.Text, rules.CharBudget)
	out.ScriptRatio = ratio
	out.SampledChars = sampled

	switch {
	case sampled == 0 && tag == "":
		out.Classification = LanguageUnknown
		out.Reason = "no language tag and no text to sample"
	case ratio > rules.TargetRatio:
		out.Language = strings.ToLower(rules.Target)
		out.Classification = LanguageTarget
		out.Present = true
		out.ConfidenceScore = clamp(int(math.Round(ratio*100)), 1, 100)
		out.Reason = "script ratio"
	case ratio > rules.MixedRatio:
		out.Language = "mixed"
		out.Classification = LanguageMixed
		out.ConfidenceScore = clamp(int(math.Round(ratio*100)), 1, 100)
		out.Reason = "script ratio"
	default:
		out.Language = tag
		if out.Language == "" {
			out.Language = LanguageOther
		}
		out.Classification = LanguageOther
		out.ConfidenceScore = clamp(int(math.Round((1-ratio)*100)), 0, 100)
		out.Reason = "script ratio"
	}

	if sampled > 0 {
		out.Evidence = append(out.Evidence, Evidence{Kind: EvidencePhrase, Detail: "arabic script ratio", Value: formatRatio(ratio)})
	}
	if tag != "" {
		out.Evidence = append(out.Evidence, Evidence{Kind: EvidenceAttribute, Detail: source, Value: tag})
	}
	if out.Classification != LanguageTarget && strings.EqualFold(rules.Target, "ar") {
		out.Suggestions = append([]string(nil), arabicSuggestions...)
	}
	return out
}

// arabicRatio counts Arabic-script runes among the first budget non-space runes.
func arabicRatio(text string, budget int) (float64, int) {
	total, arabic := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
		if total >= budget {
			break
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(arabic) / float64(total), total
}

// primarySubtag returns the base language of a BCP 47 tag, or "" when the
// tag does not parse. Only the first entry of a Content-Language list counts.
func primarySubtag(tag string) string {
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return ""
	}
	base, conf := t.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r*100, 'f', 1, 64) + "%"
}
