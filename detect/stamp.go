package detect

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultStampPresenceScore is the total stamp score that is enough on its own.
const DefaultStampPresenceScore = 60

const (
	stampPhrasePoints  = 20
	stampPhraseCap     = 60
	stampImagePoints   = 15
	stampImageCap      = 30
	stampSVGCap        = 15
	stampLinkPoints    = 8
	stampLinkCap       = 15
	stampQRCap         = 5
	maxEvidencePerKind = 10
)

// StampRules configures the trust-stamp detector.
type StampRules struct {
	Phrases       []string
	ImageKeywords []string
	SVGKeywords   []string
	// OfficialDomains are doublestar patterns matched against "host/path".
	OfficialDomains []string
	PresenceScore   int
	// NumberWindow is how many runes around a phrase are searched for a
	// registry number.
	NumberWindow int
}

// DefaultStampRules returns the rules for the Digital Government Authority
// registration stamp.
func DefaultStampRules() StampRules {
	return StampRules{
		Phrases: []string{
			"هيئة الحكومة الرقمية",
			"مسجل لدى هيئة الحكومة الرقمية",
			"موقع حكومي رسمي",
			"جهة حكومية رسمية",
			"رقم التسجيل",
			"digital government authority",
			"registered with the digital government authority",
			"official government website",
			"official saudi government",
			"registration number",
		},
		ImageKeywords: []string{"dga", "stamp", "seal", "emblem", "flag", "ختم", "شعار", "raqmi", "gov-badge", "verified"},
		SVGKeywords:   []string{"dga", "stamp", "seal", "emblem", "flag", "ختم", "palm", "digital government"},
		OfficialDomains: []string{
			"dga.gov.sa",
			"dga.gov.sa/**",
			"*.dga.gov.sa",
			"*.dga.gov.sa/**",
			"raqmi.dga.gov.sa/**",
		},
		PresenceScore: DefaultStampPresenceScore,
		NumberWindow:  80,
	}
}

var registryNumberRe = regexp.MustCompile(`(?:^|[^0-9٠-٩])([0-9٠-٩]{3,8})(?:[^0-9٠-٩]|$)`)

// DetectStamp scores the page for an official registration stamp. A stamp is
// present when the score reaches the presence threshold, or when a phrase, a
// registry number and an image or svg all corroborate each other.
func DetectStamp(p *Page, rules StampRules) Signal {
	if rules.PresenceScore <= 0 {
		rules.PresenceScore = DefaultStampPresenceScore
	}
	if rules.NumberWindow <= 0 {
		rules.NumberWindow = 80
	}

	sig := Absent()
	text := strings.ToLower(p.Text)

	hits := matchPhrases(text, rules.Phrases)
	phrases, numeric := len(hits), false
	for _, h := range hits {
		sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidencePhrase, Detail: "official phrase", Value: h.phrase})

		if !numeric {
			window := windowAround(text, h.start, h.end, rules.NumberWindow)
			if m := registryNumberRe.FindStringSubmatch(window); m != nil {
				numeric = true
				sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidencePhrase, Detail: "registry number", Value: m[1]})
			}
		}
	}

	images, qr := 0, 0
	for _, img := range p.Images {
		if kw, ok := containsAny(imageHaystack(img), rules.ImageKeywords); ok {
			images++
			if images <= maxEvidencePerKind {
				sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidenceImage, Detail: "stamp image keyword " + kw, Value: img.Src})
			}
			continue
		}
		if isQRLike(img) {
			qr++
			if qr <= stampQRCap {
				sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidenceImage, Detail: "qr-like image", Value: img.Src})
			}
		}
	}

	svgs := 0
	for _, s := range p.SVGs {
		hay := strings.Join([]string{s.ID, s.Class, s.AriaLabel, s.Title, s.Markup}, " ")
		if kw, ok := containsAny(hay, rules.SVGKeywords); ok {
			svgs++
			if svgs <= maxEvidencePerKind {
				sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidenceSVG, Detail: "stamp svg keyword " + kw, Value: firstNonEmpty(s.AriaLabel, s.Title, s.ID)})
			}
		}
	}

	links := 0
	seenLinks := make(map[string]bool)
	for _, a := range p.Anchors {
		abs := p.Resolve(a.Href)
		if abs == "" || seenLinks[abs] {
			continue
		}
		if matchesOfficialDomain(abs, rules.OfficialDomains) {
			seenLinks[abs] = true
			links++
			if links <= maxEvidencePerKind {
				sig.Evidence = append(sig.Evidence, Evidence{Kind: EvidenceLink, Detail: "official domain link", Value: abs})
			}
		}
	}

	score := min(stampPhraseCap, phrases*stampPhrasePoints)
	score += min(stampImageCap, images*stampImagePoints)
	if svgs > 0 {
		score += stampSVGCap
	}
	score += min(stampLinkCap, links*stampLinkPoints)
	score += min(stampQRCap, qr)
	score = clamp(score, 0, 100)

	corroborated := phrases > 0 && numeric && (images > 0 || svgs > 0)

	sig.ConfidenceScore = score
	sig.Present = score >= rules.PresenceScore || corroborated
	sig.Reason = stampReason(phrases, numeric, images, svgs, links, corroborated)
	return sig
}

type phraseHit struct {
	phrase     string
	start, end int
}

// matchPhrases finds the phrases in text longest first. A span of text
// belongs to one phrase only, so a phrase nested in a longer matched one
// does not count again. Hits are returned in text order.
func matchPhrases(text string, phrases []string) []phraseHit {
	ordered := append([]string(nil), phrases...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})

	var claimed [][2]int
	overlaps := func(start, end int) bool {
		for _, c := range claimed {
			if start < c[1] && c[0] < end {
				return true
			}
		}
		return false
	}

	var hits []phraseHit
	seen := make(map[string]bool)
	for _, phrase := range ordered {
		needle := strings.ToLower(strings.TrimSpace(phrase))
		if needle == "" || seen[needle] {
			continue
		}
		seen[needle] = true

		first := -1
		for from := 0; from < len(text); {
			idx := strings.Index(text[from:], needle)
			if idx < 0 {
				break
			}
			start, end := from+idx, from+idx+len(needle)
			if !overlaps(start, end) {
				claimed = append(claimed, [2]int{start, end})
				if first < 0 {
					first = start
				}
			}
			from = end
		}
		if first >= 0 {
			hits = append(hits, phraseHit{phrase: phrase, start: first, end: first + len(needle)})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

func stampReason(phrases int, numeric bool, images, svgs, links int, corroborated bool) string {
	var parts []string
	if phrases > 0 {
		parts = append(parts, "official phrase")
	}
	if numeric {
		parts = append(parts, "registry number")
	}
	if images > 0 {
		parts = append(parts, "stamp image")
	}
	if svgs > 0 {
		parts = append(parts, "stamp svg")
	}
	if links > 0 {
		parts = append(parts, "official domain link")
	}
	if len(parts) == 0 {
		return "no stamp evidence"
	}
	reason := strings.Join(parts, " + ")
	if corroborated {
		reason += " (corroborated)"
	}
	return reason
}

func imageHaystack(img Image) string {
	file := img.Src
	if u, err := url.Parse(img.Src); err == nil && u.Path != "" {
		file = path.Base(u.Path)
	}
	return strings.Join([]string{img.Alt, img.Title, img.ID, img.Class, file}, " ")
}

// isQRLike flags square images in the size range QR codes are usually shown at.
func isQRLike(img Image) bool {
	if strings.Contains(strings.ToLower(img.Src+" "+img.Alt), "qr") {
		return true
	}
	if img.Width < 60 || img.Width > 300 || img.Height < 60 || img.Height > 300 {
		return false
	}
	diff := img.Width - img.Height
	if diff < 0 {
		diff = -diff
	}
	return diff*10 <= img.Width
}

func matchesOfficialDomain(rawURL string, patterns []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	target := strings.ToLower(u.Hostname()) + strings.TrimSuffix(u.EscapedPath(), "/")
	for _, p := range patterns {
		if ok, _ := doublestar.Match(strings.ToLower(p), target); ok {
			return true
		}
	}
	return false
}

// windowAround returns s[start:end] widened by n runes on each side.
func windowAround(s string, start, end, n int) string {
	lo := start
	for i := 0; i < n && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < n && hi < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[hi:])
		hi += size
	}
	return s[lo:hi]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
