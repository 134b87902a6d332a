package detect

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/ramworld21/sda-auditor/fetch"
)

// Fetcher performs outbound candidate requests.
type Fetcher interface {
	Fetch(ctx context.Context, method, rawURL string) (*fetch.Response, error)
}

// Logo candidate sources, highest priority first.
const (
	SourceOpenGraph = "og:image"
	SourceTwitter   = "twitter:image"
	SourceImage     = "img"
	SourceIcon      = "link-icon"
	SourceFallback  = "fallback"
)

var logoKeywords = []string{"logo", "brand", "شعار", "site-name", "navbar-brand"}

// LogoCandidate is one possible logo URL with its score.
type LogoCandidate struct {
	URL    string `json:"url"`
	Source string `json:"source"`
	Score  int    `json:"score"`
}

// LogoSignal is the logo/favicon discovery outcome.
type LogoSignal struct {
	Signal
	LogoURL    string          `json:"logo_url"`
	Source     string          `json:"source"`
	FaviconURL string          `json:"favicon_url"`
	Candidates []LogoCandidate `json:"candidates,omitempty"`
	// FailedCandidates counts candidates whose fetch failed before one resolved.
	FailedCandidates int `json:"failed_candidates"`
}

// LogoCandidates collects and orders logo candidates. When any svg, png, jpg
// or webp candidate exists, .ico candidates are moved behind all of them.
func LogoCandidates(p *Page) []LogoCandidate {
	var out []LogoCandidate
	seen := make(map[string]bool)
	add := func(ref, source string, score int) {
		abs := p.Resolve(ref)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, LogoCandidate{URL: abs, Source: source, Score: score})
	}

	if v := p.MetaContent("og:image"); v != "" {
		add(v, SourceOpenGraph, 100)
	}
	if v := p.MetaContent("twitter:image"); v != "" {
		add(v, SourceTwitter, 90)
	}

	for _, img := range p.Images {
		if img.Src == "" {
			continue
		}
		score := 0
		if _, ok := containsAny(img.Alt, logoKeywords); ok {
			score += 30
		}
		if _, ok := containsAny(img.ID+" "+img.Class, logoKeywords); ok {
			score += 25
		}
		if _, ok := containsAny(path.Base(img.Src), logoKeywords); ok {
			score += 15
		}
		if score == 0 {
			continue
		}
		area := img.Width * img.Height
		score += min(20, area/2000)
		if img.Visible {
			score += 5
		}
		add(img.Src, SourceImage, clamp(score, 1, 89))
	}

	for _, l := range p.Links {
		switch relKind(l.Rel) {
		case "apple-touch-icon":
			add(l.Href, SourceIcon, 12)
		case "icon":
			add(l.Href, SourceIcon, 10)
		case "shortcut icon":
			add(l.Href, SourceIcon, 8)
		}
	}

	hasHiFi := false
	for _, c := range out {
		if isHighFidelity(c.URL) {
			hasHiFi = true
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if hasHiFi {
			ii, ij := isICO(out[i].URL), isICO(out[j].URL)
			if ii != ij {
				return ij
			}
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// DiscoverLogo fetches candidates in order and keeps the first that resolves.
// When none does it falls back to {origin}/favicon.ico.
func DiscoverLogo(ctx context.Context, p *Page, f Fetcher) LogoSignal {
	out := LogoSignal{Signal: Absent()}
	out.Candidates = LogoCandidates(p)
	out.FaviconURL = faviconURL(p)

	for _, c := range out.Candidates {
		if ctx.Err() != nil {
			break
		}
		if _, err := f.Fetch(ctx, http.MethodGet, c.URL); err != nil {
			out.FailedCandidates++
			continue
		}
		out.Present = true
		out.LogoURL = c.URL
		out.Source = c.Source
		out.ConfidenceScore = clamp(c.Score, 1, 100)
		out.Evidence = append(out.Evidence, Evidence{Kind: evidenceForSource(c.Source), Detail: c.Source, Value: c.URL})
		out.Reason = "resolved " + c.Source + " candidate"
		return out
	}

	if origin := p.Origin(); origin != "" {
		out.LogoURL = origin + "/favicon.ico"
		out.Source = SourceFallback
		out.Reason = "no candidate resolved, using origin favicon"
	}
	return out
}

func faviconURL(p *Page) string {
	var best string
	bestRank := 0
	for _, l := range p.Links {
		rank := 0
		switch relKind(l.Rel) {
		case "icon":
			rank = 3
		case "shortcut icon":
			rank = 2
		case "apple-touch-icon":
			rank = 1
		}
		if rank > bestRank {
			if abs := p.Resolve(l.Href); abs != "" {
				best, bestRank = abs, rank
			}
		}
	}
	if best == "" {
		if origin := p.Origin(); origin != "" {
			best = origin + "/favicon.ico"
		}
	}
	return best
}

func relKind(rel string) string {
	r := strings.Join(strings.Fields(strings.ToLower(rel)), " ")
	switch r {
	case "icon", "shortcut icon", "apple-touch-icon", "apple-touch-icon-precomposed":
		if r == "apple-touch-icon-precomposed" {
			return "apple-touch-icon"
		}
		return r
	}
	return ""
}

func extOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

func isICO(rawURL string) bool { return extOf(rawURL) == ".ico" }

func isHighFidelity(rawURL string) bool {
	switch extOf(rawURL) {
	case ".svg", ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}

func evidenceForSource(source string) EvidenceKind {
	switch source {
	case SourceOpenGraph, SourceTwitter:
		return EvidenceAttribute
	case SourceIcon:
		return EvidenceLink
	}
	return EvidenceImage
}
