package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ramworld21/sda-auditor/detect"
	"github.com/ramworld21/sda-auditor/style"
)

// Sampling limits per mode.
const (
	StyleSampleLimit     = 3000
	FastStyleSampleLimit = 300
	TextSampleLimit      = 200
	FastTextSampleLimit  = 60
	FontWait             = 3 * time.Second
	FastFontWait         = 500 * time.Millisecond

	pageTextBudget = 20000
	maxItems       = 300
	svgMarkupLimit = 600
)

// extractOptions is the JSON options bag handed to the extraction script.
type extractOptions struct {
	StyleLimit int      `json:"styleLimit"`
	TextLimit  int      `json:"textLimit"`
	FontWaitMs int64    `json:"fontWaitMs"`
	ProbeNames []string `json:"probeNames"`
	TextBudget int      `json:"textBudget"`
	MaxItems   int      `json:"maxItems"`
	SVGMarkup  int      `json:"svgMarkup"`
}

func newExtractOptions(fast bool, probes []string) extractOptions {
	opts := extractOptions{
		StyleLimit: StyleSampleLimit,
		TextLimit:  TextSampleLimit,
		FontWaitMs: FontWait.Milliseconds(),
		ProbeNames: probes,
		TextBudget: pageTextBudget,
		MaxItems:   maxItems,
		SVGMarkup:  svgMarkupLimit,
	}
	if fast {
		opts.StyleLimit = FastStyleSampleLimit
		opts.TextLimit = FastTextSampleLimit
		opts.FontWaitMs = FastFontWait.Milliseconds()
	}
	return opts
}

// snapshot is what the extraction script returns.
type snapshot struct {
	Page              detect.Page `json:"page"`
	Colors            []string    `json:"colors"`
	Spacing           []string    `json:"spacing"`
	Families          []string    `json:"families"`
	StyleLimitHit     bool        `json:"style_limit_hit"`
	FontSamples       []string    `json:"font_samples"`
	TextLimitHit      bool        `json:"text_limit_hit"`
	FontFaceAvailable bool        `json:"font_face_available"`
}

// Samples flattens the collected style values into StyleSamples.
func (s *snapshot) Samples() []style.StyleSample {
	out := make([]style.StyleSample, 0, len(s.Colors)+len(s.Spacing)+len(s.Families))
	for _, v := range s.Colors {
		out = append(out, style.StyleSample{Kind: style.KindColor, RawValue: v, SourceLimit: s.StyleLimitHit})
	}
	for _, v := range s.Spacing {
		out = append(out, style.StyleSample{Kind: style.KindSpacing, RawValue: v, SourceLimit: s.StyleLimitHit})
	}
	for _, v := range s.Families {
		out = append(out, style.StyleSample{Kind: style.KindFont, RawValue: v, SourceLimit: s.StyleLimitHit})
	}
	return out
}

// FontInput returns the inputs of the font identity check.
func (s *snapshot) FontInput() style.FontInput {
	return style.FontInput{
		Families:          s.Families,
		Samples:           s.FontSamples,
		FontFaceAvailable: s.FontFaceAvailable,
	}
}

func buildExtractScript(opts extractOptions) (string, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return "(" + extractScript + ")(" + string(raw) + ")", nil
}

// extract runs the extraction script and, when it fails, rebuilds the
// structural page from the raw HTML. fallback reports the second path.
// When both paths fail the snapshot is empty but non-nil and err is an
// *ExtractionError, so the caller can still run the checks that need only
// the URL. A nil snapshot means ctx ended.
func extract(ctx context.Context, s Session, pageURL string, opts extractOptions) (snap *snapshot, fallback bool, err error) {
	empty := &snapshot{Page: detect.Page{URL: pageURL}}

	script, err := buildExtractScript(opts)
	if err != nil {
		return empty, false, &ExtractionError{Stage: "script", Err: err}
	}

	var out snapshot
	evalErr := s.Evaluate(ctx, script, &out)
	if evalErr == nil {
		if out.Page.URL == "" {
			out.Page.URL = pageURL
		}
		return &out, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	markup, err := s.OuterHTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return empty, false, &ExtractionError{Stage: "outer_html", Err: fmt.Errorf("%w (script: %v)", err, evalErr)}
	}
	page, err := pageFromHTML(pageURL, markup)
	if err != nil {
		return empty, false, &ExtractionError{Stage: "html_parse", Err: err}
	}
	if title, err := s.Title(ctx); err == nil && title != "" {
		page.Title = title
	}
	return &snapshot{Page: *page}, true, nil
}

// pageFromHTML builds the structural signals from markup alone. Visibility
// and sizes are unknown, so images and svgs count as visible when not hidden
// by attribute.
func pageFromHTML(pageURL, markup string) (*detect.Page, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	p := &detect.Page{URL: pageURL}
	var text strings.Builder
	// box is the nearest clickable ancestor, nil outside links and buttons
	var walk func(n *html.Node, header bool, box *html.Node)
	walk = func(n *html.Node, header bool, box *html.Node) {
		if n.Type == html.TextNode {
			if text.Len() < pageTextBudget {
				if t := strings.TrimSpace(n.Data); t != "" {
					text.WriteString(t)
					text.WriteByte(' ')
				}
			}
			return
		}
		if n.Type != html.ElementNode && n.Type != html.DocumentNode {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, header, box)
			}
			return
		}

		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Html:
			p.Lang = attr(n, "lang")
		case atom.Title:
			if p.Title == "" && n.FirstChild != nil {
				p.Title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		case atom.Meta:
			m := detect.Meta{Name: attr(n, "name"), Property: attr(n, "property"), HTTPEquiv: attr(n, "http-equiv"), Content: attr(n, "content")}
			if strings.EqualFold(m.HTTPEquiv, "content-language") && p.ContentLanguage == "" {
				p.ContentLanguage = m.Content
			}
			p.Metas = appendCapped(p.Metas, m)
		case atom.Link:
			p.Links = appendCapped(p.Links, detect.Link{Rel: attr(n, "rel"), Href: attr(n, "href"), Type: attr(n, "type"), Sizes: attr(n, "sizes")})
		case atom.Img:
			p.Images = appendCapped(p.Images, detect.Image{
				Src:     firstAttr(n, "src", "data-src"),
				Alt:     attr(n, "alt"),
				ID:      attr(n, "id"),
				Class:   attr(n, "class"),
				Title:   attr(n, "title"),
				Width:   intAttr(n, "width"),
				Height:  intAttr(n, "height"),
				Visible: !hiddenByAttr(n),
			})
		case atom.Svg:
			svg := detect.SVG{
				ID:        attr(n, "id"),
				Class:     attr(n, "class"),
				AriaLabel: attr(n, "aria-label"),
				Width:     intAttr(n, "width"),
				Height:    intAttr(n, "height"),
				Visible:   !hiddenByAttr(n),
			}
			var paths []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "title" && c.FirstChild != nil {
					svg.Title = strings.TrimSpace(c.FirstChild.Data)
				}
				if c.Type == html.ElementNode && c.Data == "path" {
					paths = append(paths, attr(c, "d"))
				}
			}
			p.SVGs = appendCapped(p.SVGs, svg)
			if box != nil {
				p.Icons = appendCapped(p.Icons, detect.Icon{
					Tag:            "svg",
					ID:             svg.ID,
					Class:          svg.Class,
					AriaLabel:      svg.AriaLabel,
					Title:          svg.Title,
					PathData:       strings.Join(paths, " "),
					Visible:        svg.Visible,
					InClickable:    true,
					InHeaderNav:    header,
					OnlyContent:    onlyContent(box, n),
					ContainerLabel: firstAttr(box, "aria-label", "title"),
				})
			}
			return
		case atom.A:
			p.Anchors = appendCapped(p.Anchors, detect.Anchor{Href: attr(n, "href"), Text: textOf(n), Rel: attr(n, "rel"), Title: attr(n, "title")})
			box = n
		case atom.Button:
			box = n
		case atom.Input:
			p.Inputs = appendCapped(p.Inputs, detect.Input{
				Type:         attr(n, "type"),
				Name:         attr(n, "name"),
				ID:           attr(n, "id"),
				Placeholder:  attr(n, "placeholder"),
				AriaLabel:    attr(n, "aria-label"),
				Autocomplete: attr(n, "autocomplete"),
				Class:        attr(n, "class"),
			})
		case atom.Form:
			p.Forms = appendCapped(p.Forms, detect.Form{Role: attr(n, "role"), Action: attr(n, "action"), ID: attr(n, "id"), Class: attr(n, "class"), AriaLabel: attr(n, "aria-label")})
		case atom.Header, atom.Nav:
			header = true
		case atom.I:
			if box != nil {
				p.Icons = appendCapped(p.Icons, detect.Icon{
					Tag:            "i",
					ID:             attr(n, "id"),
					Class:          attr(n, "class"),
					AriaLabel:      attr(n, "aria-label"),
					Title:          attr(n, "title"),
					Text:           strings.TrimSpace(textOf(n)),
					Visible:        !hiddenByAttr(n),
					InClickable:    true,
					InHeaderNav:    header,
					OnlyContent:    onlyContent(box, n),
					ContainerLabel: firstAttr(box, "aria-label", "title"),
				})
			}
		}

		switch strings.ToLower(attr(n, "role")) {
		case "banner", "navigation":
			header = true
		case "button":
			box = n
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, header, box)
		}
	}
	walk(doc, false, nil)

	p.Text = strings.TrimSpace(text.String())
	return p, nil
}

func appendCapped[T any](s []T, v T) []T {
	if len(s) >= maxItems {
		return s
	}
	return append(s, v)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := attr(n, k); v != "" {
			return v
		}
	}
	return ""
}

func intAttr(n *html.Node, key string) int {
	v, err := strconv.Atoi(strings.TrimSuffix(attr(n, key), "px"))
	if err != nil {
		return 0
	}
	return v
}

func hiddenByAttr(n *html.Node) bool {
	if _, ok := lookupAttr(n, "hidden"); ok {
		return true
	}
	st := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(st, "display:none") || strings.Contains(st, "visibility:hidden")
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// onlyContent reports whether icon carries all of the text of box, which
// holds for a button or link whose only child is the icon.
func onlyContent(box, icon *html.Node) bool {
	return strings.TrimSpace(textOf(box)) == strings.TrimSpace(textOf(icon))
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if b.Len() > 200 {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractScript is evaluated with the options bag as its only argument and
// resolves to a snapshot.
const extractScript = `async (opts) => {
  const attr = (el, n) => (el.getAttribute && el.getAttribute(n)) || '';
  const visible = (el) => {
    if (!el || !el.getClientRects) return false;
    const cs = getComputedStyle(el);
    if (cs.display === 'none' || cs.visibility === 'hidden' || parseFloat(cs.opacity) === 0) return false;
    return el.getClientRects().length > 0;
  };
  const size = (el) => {
    const r = el.getBoundingClientRect();
    return [Math.round(r.width), Math.round(r.height)];
  };
  const clip = (s, n) => (s || '').replace(/\s+/g, ' ').trim().slice(0, n);
  const take = (list) => Array.prototype.slice.call(list, 0, opts.maxItems);

  if (opts.fontWaitMs > 0 && document.fonts && document.fonts.ready) {
    await Promise.race([document.fonts.ready, new Promise(r => setTimeout(r, opts.fontWaitMs))]);
  }

  const colors = new Set(), spacing = new Set(), families = new Set();
  const all = document.querySelectorAll('body *');
  const styleLimitHit = all.length > opts.styleLimit;
  const spacingProps = ['marginTop', 'marginRight', 'marginBottom', 'marginLeft',
    'paddingTop', 'paddingRight', 'paddingBottom', 'paddingLeft', 'rowGap', 'columnGap'];
  for (const el of Array.prototype.slice.call(all, 0, opts.styleLimit)) {
    const cs = getComputedStyle(el);
    colors.add(cs.color);
    colors.add(cs.backgroundColor);
    if (parseFloat(cs.borderTopWidth) > 0) colors.add(cs.borderTopColor);
    for (const p of spacingProps) spacing.add(cs[p]);
    families.add(cs.fontFamily);
  }

  const samples = [];
  let textLimitHit = false;
  const root = document.body || document.documentElement;
  const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
  const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);
  for (let node = walker.nextNode(); node; node = walker.nextNode()) {
    if (!node.nodeValue || !node.nodeValue.trim()) continue;
    const el = node.parentElement;
    if (!el || skip.has(el.tagName) || !visible(el)) continue;
    if (samples.length >= opts.textLimit) { textLimitHit = true; break; }
    samples.push(getComputedStyle(el).fontFamily);
  }

  let fontFaceAvailable = false;
  const norm = (s) => (s || '').replace(/["']/g, '').replace(/[\s_-]/g, '').toLowerCase();
  const probes = (opts.probeNames || []).map(norm);
  if (document.fonts && probes.length) {
    document.fonts.forEach((face) => {
      if (face.status === 'loaded' && probes.includes(norm(face.family))) fontFaceAvailable = true;
    });
  }

  const metas = take(document.querySelectorAll('meta')).map(m => ({
    name: attr(m, 'name'), property: attr(m, 'property'), http_equiv: attr(m, 'http-equiv'), content: attr(m, 'content')
  }));
  const links = take(document.querySelectorAll('link[rel]')).map(l => ({
    rel: attr(l, 'rel'), href: attr(l, 'href'), type: attr(l, 'type'), sizes: attr(l, 'sizes')
  }));
  const images = take(document.querySelectorAll('img')).map(img => {
    const [w, h] = size(img);
    return {
      src: img.currentSrc || attr(img, 'src') || attr(img, 'data-src'), alt: attr(img, 'alt'), id: img.id || '',
      class: attr(img, 'class'), title: attr(img, 'title'),
      width: w || img.naturalWidth || 0, height: h || img.naturalHeight || 0, visible: visible(img)
    };
  });
  const svgs = take(document.querySelectorAll('svg')).map(svg => {
    const [w, h] = size(svg);
    const t = svg.querySelector('title');
    return {
      id: svg.id || '', class: attr(svg, 'class'), aria_label: attr(svg, 'aria-label'),
      title: t ? clip(t.textContent, 120) : '', markup: (svg.outerHTML || '').slice(0, opts.svgMarkup),
      width: w, height: h, visible: visible(svg)
    };
  });
  const anchors = take(document.querySelectorAll('a[href]')).map(a => ({
    href: attr(a, 'href'), text: clip(a.textContent, 200), rel: attr(a, 'rel'), title: attr(a, 'title')
  }));
  const inputs = take(document.querySelectorAll('input, textarea')).map(i => ({
    type: attr(i, 'type'), name: attr(i, 'name'), id: i.id || '', placeholder: attr(i, 'placeholder'),
    aria_label: attr(i, 'aria-label'), autocomplete: attr(i, 'autocomplete'), class: attr(i, 'class')
  }));
  const forms = take(document.querySelectorAll('form, [role="search"]')).map(f => ({
    role: attr(f, 'role'), action: attr(f, 'action'), id: f.id || '', class: attr(f, 'class'), aria_label: attr(f, 'aria-label')
  }));

  const clickableSel = 'button, a, [role="button"], summary, label';
  const headerSel = 'header, nav, [role="banner"], [role="navigation"]';
  const icons = take(document.querySelectorAll('svg, i, span[class*="icon"], span[class*="search"]')).map(el => {
    const box = el.closest(clickableSel);
    const only = !!box && clip(box.textContent, 50) === clip(el.textContent, 50);
    const paths = el.tagName.toLowerCase() === 'svg'
      ? Array.prototype.map.call(el.querySelectorAll('path'), p => attr(p, 'd')).join(' ').slice(0, 2000) : '';
    return {
      tag: el.tagName.toLowerCase(), id: el.id || '', class: attr(el, 'class'), aria_label: attr(el, 'aria-label'),
      title: attr(el, 'title'), text: clip(el.textContent, 50), path_data: paths, visible: visible(el),
      in_clickable: !!box, in_header_nav: !!el.closest(headerSel), only_content: only,
      container_label: box ? (attr(box, 'aria-label') || attr(box, 'title')) : ''
    };
  });

  const cl = document.querySelector('meta[http-equiv="content-language" i]');
  return {
    page: {
      url: location.href, title: document.title || '', lang: attr(document.documentElement, 'lang'),
      content_language: cl ? attr(cl, 'content') : '',
      text: clip(root ? root.innerText : '', opts.textBudget),
      metas, links, images, svgs, anchors, inputs, forms, icons
    },
    colors: Array.from(colors), spacing: Array.from(spacing), families: Array.from(families),
    style_limit_hit: styleLimitHit, font_samples: samples, text_limit_hit: textLimitHit,
    font_face_available: fontFaceAvailable
  };
}`
