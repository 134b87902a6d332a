package detect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
)

// Sitemap categories.
const (
	SitemapHuman   = "human"
	SitemapMachine = "machine"
	SitemapOther   = "other"
)

// Sitemap sources.
const (
	SitemapFromRobots = "robots.txt"
	SitemapFromProbe  = "probe"
	SitemapFromPage   = "page"
)

// SitemapProbePaths are requested against the page origin.
var SitemapProbePaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemap.html",
	"/sitemap",
	"/site-map",
	"/wp-sitemap.xml",
}

var (
	machineSitemapRe = regexp.MustCompile(`(?i)\.xml(\.gz)?(\?|$)`)
	humanSitemapRe   = regexp.MustCompile(`(?i)(/sitemap/?$|/site-map/?$|sitemap\.html$)`)
	sitemapTokens    = []string{"sitemap", "site-map", "site map", "خريطة الموقع", "خريطة موقع"}
)

// SitemapEntry is one discovered sitemap.
type SitemapEntry struct {
	URL      string `json:"url"`
	Source   string `json:"source"`
	Category string `json:"category"`
	// Root is the XML root element when the body was validated.
	Root string `json:"root,omitempty"`
	// Entries counts <loc> elements in a validated XML sitemap.
	Entries int `json:"entries,omitempty"`
}

// SitemapSignal lists every sitemap found by category.
type SitemapSignal struct {
	Signal
	All           []SitemapEntry `json:"all"`
	HumanReadable []string       `json:"human_readable"`
	Machine       []string       `json:"machine"`
	Other         []string       `json:"other"`
}

// CategorizeSitemap classifies a sitemap URL.
func CategorizeSitemap(rawURL string) string {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch {
	case machineSitemapRe.MatchString(rawURL):
		return SitemapMachine
	case humanSitemapRe.MatchString(path):
		return SitemapHuman
	}
	return SitemapOther
}

// DiscoverSitemaps checks robots.txt, the well-known paths and in-page links.
func DiscoverSitemaps(ctx context.Context, p *Page, f Fetcher) SitemapSignal {
	out := SitemapSignal{
		Signal:        Absent(),
		All:           []SitemapEntry{},
		HumanReadable: []string{},
		Machine:       []string{},
		Other:         []string{},
	}
	seen := make(map[string]bool)
	add := func(e SitemapEntry) {
		if e.URL == "" || seen[e.URL] {
			return
		}
		seen[e.URL] = true
		e.Category = CategorizeSitemap(e.URL)
		out.All = append(out.All, e)
	}

	origin := p.Origin()
	if origin != "" {
		if resp, err := f.Fetch(ctx, http.MethodGet, origin+"/robots.txt"); err == nil {
			refs, _ := RobotsSitemaps(resp.Body)
			for _, ref := range refs {
				e := SitemapEntry{URL: p.Resolve(ref), Source: SitemapFromRobots}
				if e.URL != "" && machineSitemapRe.MatchString(e.URL) {
					if body, err := f.Fetch(ctx, http.MethodGet, e.URL); err == nil {
						e.Root, e.Entries = inspectSitemapXML(body.Body)
					}
				}
				add(e)
			}
		}

		for _, probe := range SitemapProbePaths {
			if ctx.Err() != nil {
				break
			}
			u := origin + probe
			if seen[u] {
				continue
			}
			resp, err := f.Fetch(ctx, http.MethodGet, u)
			if err != nil || !sitemapContentType(resp.MediaType()) {
				continue
			}
			e := SitemapEntry{URL: u, Source: SitemapFromProbe}
			if strings.Contains(resp.MediaType(), "xml") || machineSitemapRe.MatchString(u) {
				e.Root, e.Entries = inspectSitemapXML(resp.Body)
				if e.Root == "" && machineSitemapRe.MatchString(u) {
					// soft 404 served as HTML or an unrelated XML document
					continue
				}
			}
			add(e)
		}
	}

	for _, l := range p.Links {
		if strings.EqualFold(strings.TrimSpace(l.Rel), "sitemap") {
			add(SitemapEntry{URL: p.Resolve(l.Href), Source: SitemapFromPage})
		}
	}
	for _, a := range p.Anchors {
		if _, ok := containsAny(a.Href+" "+a.Text+" "+a.Title, sitemapTokens); ok {
			add(SitemapEntry{URL: p.Resolve(a.Href), Source: SitemapFromPage})
		}
	}

	best := 0
	for _, e := range out.All {
		switch e.Category {
		case SitemapHuman:
			out.HumanReadable = append(out.HumanReadable, e.URL)
		case SitemapMachine:
			out.Machine = append(out.Machine, e.URL)
		default:
			out.Other = append(out.Other, e.URL)
		}
		kind := EvidenceLink
		if e.Root != "" {
			kind = EvidenceAttribute
		}
		out.Evidence = append(out.Evidence, Evidence{Kind: kind, Detail: e.Source + " " + e.Category, Value: e.URL})
		best = max(best, sitemapConfidence(e.Source))
	}

	if len(out.All) > 0 {
		out.Present = true
		out.ConfidenceScore = best
		out.Reason = pluralSitemaps(len(out.All))
	} else {
		out.Reason = "no sitemap found"
	}
	return out
}

// RobotsSitemaps returns the values of Sitemap: directives in a robots.txt
// body. A body that does not parse yields an error and no references.
func RobotsSitemaps(body []byte) ([]string, error) {
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	out := make([]string, 0, len(robots.Sitemaps))
	for _, v := range robots.Sitemaps {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// inspectSitemapXML returns the root element name and <loc> count of a
// sitemap document, or "" when the body is not a sitemap.
func inspectSitemapXML(body []byte) (string, int) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", 0
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", 0
	}
	root := xmlquery.FindOne(doc, "/*")
	if root == nil {
		return "", 0
	}
	name := strings.ToLower(root.Data)
	if name != "urlset" && name != "sitemapindex" {
		return "", 0
	}
	return name, len(xmlquery.Find(doc, "//*[local-name()='loc']"))
}

func sitemapContentType(mt string) bool {
	return mt == "" || strings.HasPrefix(mt, "text/") || strings.Contains(mt, "xml")
}

func sitemapConfidence(source string) int {
	switch source {
	case SitemapFromRobots:
		return 100
	case SitemapFromProbe:
		return 90
	}
	return 60
}

func pluralSitemaps(n int) string {
	if n == 1 {
		return "1 sitemap found"
	}
	return strconv.Itoa(n) + " sitemaps found"
}
