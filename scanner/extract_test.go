package scanner

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fallbackHTML = `<!doctype html>
<html lang="ar-SA" dir="rtl">
<head>
  <title>بوابة الوزارة</title>
  <meta property="og:image" content="/og.png">
  <meta http-equiv="Content-Language" content="ar">
  <link rel="icon" href="/favicon.svg" type="image/svg+xml">
  <script>var x = "هيئة الحكومة الرقمية";</script>
</head>
<body>
  <nav role="navigation">
    <button aria-label="search"><svg><title>Search</title><path d="M21 21l-4.35-4.35"/></svg></button>
  </nav>
  <img src="/logo.png" alt="شعار" width="200" height="80">
  <img src="/hidden.png" style="display: none">
  <a href="/sitemap">خريطة الموقع</a>
  <form role="search" action="/search"><input type="search" name="q" placeholder="ابحث"></form>
  <p>مرحبا</p>
</body>
</html>`

func TestPageFromHTML(t *testing.T) {
	p, err := pageFromHTML("https://a.gov.sa/", fallbackHTML)
	require.NoError(t, err)

	assert.Equal(t, "ar-SA", p.Lang)
	assert.Equal(t, "ar", p.ContentLanguage)
	assert.Equal(t, "بوابة الوزارة", p.Title)
	assert.Equal(t, "/og.png", p.MetaContent("og:image"))
	require.Len(t, p.Links, 1)
	assert.Equal(t, "icon", p.Links[0].Rel)

	require.Len(t, p.Images, 2)
	assert.Equal(t, 200, p.Images[0].Width)
	assert.True(t, p.Images[0].Visible)
	assert.False(t, p.Images[1].Visible)

	require.Len(t, p.SVGs, 1)
	assert.Equal(t, "Search", p.SVGs[0].Title)
	require.Len(t, p.Icons, 1)
	assert.True(t, p.Icons[0].InClickable)
	assert.True(t, p.Icons[0].InHeaderNav)
	assert.Equal(t, "M21 21l-4.35-4.35", p.Icons[0].PathData)
	assert.True(t, p.Icons[0].OnlyContent)
	assert.Equal(t, "search", p.Icons[0].ContainerLabel)

	require.Len(t, p.Anchors, 1)
	assert.Equal(t, "خريطة الموقع", p.Anchors[0].Text)
	require.Len(t, p.Forms, 1)
	require.Len(t, p.Inputs, 1)
	assert.Equal(t, "search", p.Inputs[0].Type)

	assert.Contains(t, p.Text, "مرحبا")
	assert.NotContains(t, p.Text, "هيئة الحكومة الرقمية", "script text is skipped")
}

func TestExtract_UsesScriptResult(t *testing.T) {
	snap := samplePage()
	snap.Page.URL = ""
	s := &fakeSession{snap: snap}

	got, fallback, err := extract(context.Background(), s, "https://moh.gov.sa/", newExtractOptions(false, nil))
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, "https://moh.gov.sa/", got.Page.URL)
	assert.Len(t, got.Samples(), len(snap.Colors)+len(snap.Spacing)+len(snap.Families))
	assert.True(t, strings.HasPrefix(s.scripts[0], "(async (opts) =>"))
}

func TestExtract_Fallback(t *testing.T) {
	s := &fakeSession{evalErr: errors.New("boom"), html: fallbackHTML}

	got, fallback, err := extract(context.Background(), s, "https://a.gov.sa/", newExtractOptions(true, nil))
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Empty(t, got.Samples())
	assert.Equal(t, "ar-SA", got.Page.Lang)
}

func TestPageFromHTML_IconContainers(t *testing.T) {
	markup := `<html><body>
  <a href="/search" title="بحث"><i class="fa fa-search"></i></a>
  <button><i class="icon-search"></i> ابحث الآن</button>
  <a href="/x"><span role="button" aria-label="find"><svg><path d="M1 1"/></svg></span></a>
</body></html>`

	p, err := pageFromHTML("https://a.gov.sa/", markup)
	require.NoError(t, err)
	require.Len(t, p.Icons, 3)

	assert.Equal(t, "i", p.Icons[0].Tag)
	assert.True(t, p.Icons[0].OnlyContent)
	assert.Equal(t, "بحث", p.Icons[0].ContainerLabel)

	assert.False(t, p.Icons[1].OnlyContent, "button has its own text")
	assert.Empty(t, p.Icons[1].ContainerLabel)

	assert.Equal(t, "svg", p.Icons[2].Tag)
	assert.True(t, p.Icons[2].OnlyContent)
	assert.Equal(t, "find", p.Icons[2].ContainerLabel, "nearest clickable wins")
}

func TestExtract_BothFail(t *testing.T) {
	s := &fakeSession{evalErr: errors.New("boom")}
	got, fallback, err := extract(context.Background(), s, "https://a.gov.sa/", newExtractOptions(false, nil))

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "outer_html", ee.Stage)
	assert.False(t, fallback)
	require.NotNil(t, got)
	assert.Equal(t, "https://a.gov.sa/", got.Page.URL)
	assert.Empty(t, got.Page.Text)
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSession{evalErr: context.Canceled}

	got, _, err := extract(ctx, s, "https://a.gov.sa/", newExtractOptions(false, nil))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNetworkCollector(t *testing.T) {
	c := newNetworkCollector("https://www.moh.gov.sa/ar")
	c.observe(ResponseEvent{URL: "https://www.moh.gov.sa/ar", ResourceType: "Document", Bytes: 100})
	c.observe(ResponseEvent{URL: "https://moh.gov.sa/app.css", ResourceType: "Stylesheet", Bytes: 50})
	c.observe(ResponseEvent{URL: "https://fonts.gstatic.com/a.woff2", ResourceType: "Font", Bytes: 30})
	c.observe(ResponseEvent{URL: "https://fonts.gstatic.com/b.woff2", ResourceType: "Font", Bytes: 20})
	c.observe(ResponseEvent{URL: "data:image/png;base64,AAAA"})

	m := c.snapshot()
	assert.Equal(t, 4, m.Requests)
	assert.Equal(t, int64(200), m.TransferBytes)
	assert.Equal(t, 2, m.ByType["Font"])
	require.Len(t, m.Hosts, 3)
	assert.Equal(t, "fonts.gstatic.com", m.Hosts[0].Host, "external hosts sort first")
	assert.Equal(t, 2, m.Hosts[0].Requests)
	assert.Equal(t, NetworkStats{TotalHosts: 3, InternalHosts: 2, ExternalHosts: 1, ExternalBytes: 50}, m.Stats)
}

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, len(ips))
	for i, ip := range ips {
		out[i] = net.IPAddr{IP: net.ParseIP(ip)}
	}
	return out, nil
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]error{
		"moh.gov.sa":              nil,
		"  https://moh.gov.sa/ar": nil,
		"ftp://moh.gov.sa":        ErrInvalidScheme,
		"":                        ErrInvalidURL,
		"https://":                ErrEmptyHost,
		"http://localhost:8080":   ErrBlockedHost,
		"https://" + strings.Repeat("a", MaxURLLength): ErrURLTooLong,
	}
	for in, want := range tests {
		_, err := NormalizeURL(in)
		if want == nil {
			assert.NoError(t, err, in)
		} else {
			assert.ErrorIs(t, err, want, in)
		}
	}

	u, err := NormalizeURL("moh.gov.sa")
	require.NoError(t, err)
	assert.Equal(t, "https://moh.gov.sa", u.String())
}

func TestCheckAllowedHost(t *testing.T) {
	allowed := []string{"moh.gov.sa", "https://www.kfupm.edu.sa/", "ncar.org.sa", "kfsh.med.sa", "school.sch.sa", "gov.sa"}
	for _, raw := range allowed {
		u, err := url.Parse(raw)
		if u.Host == "" {
			u, err = url.Parse("https://" + raw)
		}
		require.NoError(t, err)
		assert.NoError(t, CheckAllowedHost(u, DefaultAllowedSuffixes), raw)
	}

	for _, raw := range []string{"https://example.com", "https://gov.sa.evil.com", "https://fakegov.sa"} {
		u, _ := url.Parse(raw)
		assert.ErrorIs(t, CheckAllowedHost(u, DefaultAllowedSuffixes), ErrHostNotAllowed, raw)
	}

	u, _ := url.Parse("https://example.com")
	assert.NoError(t, CheckAllowedHost(u, nil))
}

func TestValidateURL(t *testing.T) {
	r := staticResolver{
		"moh.gov.sa":      {"185.1.2.3"},
		"internal.gov.sa": {"185.1.2.3", "10.0.0.5"},
	}

	got, err := ValidateURL(context.Background(), "moh.gov.sa", r)
	require.NoError(t, err)
	assert.Equal(t, "https://moh.gov.sa", got)

	_, err = ValidateURL(context.Background(), "internal.gov.sa", r)
	assert.ErrorIs(t, err, ErrPrivateIP)

	_, err = ValidateURL(context.Background(), "http://169.254.169.254/latest", r)
	assert.ErrorIs(t, err, ErrPrivateIP)

	_, err = ValidateURL(context.Background(), "unknown.gov.sa", r)
	assert.Error(t, err)

	guard := NewFetchGuard(r)
	assert.NoError(t, guard(context.Background(), "https://moh.gov.sa/robots.txt"))
	assert.ErrorIs(t, guard(context.Background(), "http://127.0.0.1/logo.png"), ErrPrivateIP)
}

type stallingResolver struct{}

func (stallingResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchGuard_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewFetchGuard(stallingResolver{})(ctx, "https://moh.gov.sa/robots.txt")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsPrivateIP(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.1.1", "172.16.0.1", "::1", "fe80::1", "0.0.0.0", "::ffff:127.0.0.1"} {
		assert.True(t, IsPrivateIP(ip), ip)
	}
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}
