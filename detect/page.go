package detect

import (
	"net/url"
	"strings"
)

// Page is the structural snapshot of a rendered page that detectors work on.
// It is produced once per scan and never modified afterwards.
type Page struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Lang            string   `json:"lang"`
	ContentLanguage string   `json:"content_language"`
	Text            string   `json:"text"`
	Metas           []Meta   `json:"metas"`
	Links           []Link   `json:"links"`
	Images          []Image  `json:"images"`
	SVGs            []SVG    `json:"svgs"`
	Anchors         []Anchor `json:"anchors"`
	Inputs          []Input  `json:"inputs"`
	Forms           []Form   `json:"forms"`
	Icons           []Icon   `json:"icons"`
}

type Meta struct {
	Name      string `json:"name,omitempty"`
	Property  string `json:"property,omitempty"`
	HTTPEquiv string `json:"http_equiv,omitempty"`
	Content   string `json:"content"`
}

type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Sizes string `json:"sizes,omitempty"`
}

type Image struct {
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	ID      string `json:"id,omitempty"`
	Class   string `json:"class,omitempty"`
	Title   string `json:"title,omitempty"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
}

// SVG is an inline svg. Markup is truncated by the extractor.
type SVG struct {
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`
	Title     string `json:"title,omitempty"`
	Markup    string `json:"markup,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Visible   bool   `json:"visible"`
}

type Anchor struct {
	Href  string `json:"href"`
	Text  string `json:"text,omitempty"`
	Rel   string `json:"rel,omitempty"`
	Title string `json:"title,omitempty"`
}

type Input struct {
	Type         string `json:"type,omitempty"`
	Name         string `json:"name,omitempty"`
	ID           string `json:"id,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	AriaLabel    string `json:"aria_label,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"`
	Class        string `json:"class,omitempty"`
}

type Form struct {
	Role      string `json:"role,omitempty"`
	Action    string `json:"action,omitempty"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`
}

// Icon is a visible svg, i or span that may act as an icon-only control.
type Icon struct {
	Tag       string `json:"tag"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	AriaLabel string `json:"aria_label,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	PathData  string `json:"path_data,omitempty"`
	Visible   bool   `json:"visible"`
	// InClickable is set when an ancestor is a button, link or role=button.
	InClickable bool `json:"in_clickable"`
	// InHeaderNav is set when an ancestor is header, nav or role=banner/navigation.
	InHeaderNav bool `json:"in_header_nav"`
	// OnlyContent is set when the icon is the sole content of its clickable container.
	OnlyContent    bool   `json:"only_content"`
	ContainerLabel string `json:"container_label,omitempty"`
}

// Origin returns scheme://host of the page URL, or "" when it has none.
func (p *Page) Origin() string {
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// MetaContent returns the content of the first meta whose name or property
// equals key (case-insensitive).
func (p *Page) MetaContent(key string) string {
	for _, m := range p.Metas {
		if strings.EqualFold(m.Name, key) || strings.EqualFold(m.Property, key) || strings.EqualFold(m.HTTPEquiv, key) {
			if c := strings.TrimSpace(m.Content); c != "" {
				return c
			}
		}
	}
	return ""
}

// Resolve makes ref absolute against the page URL. Unusable references such
// as data: and javascript: URLs yield "".
func (p *Page) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "#") {
		return ""
	}

	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	base, err := url.Parse(p.URL)
	if err != nil || base.Scheme == "" {
		if r.IsAbs() {
			return r.String()
		}
		return ""
	}
	abs := base.ResolveReference(r)
	abs.Fragment = ""
	return abs.String()
}

func containsAny(s string, keywords []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}
