package scanner

import (
	"errors"
	"time"

	"github.com/ramworld21/sda-auditor/detect"
	"github.com/ramworld21/sda-auditor/style"
)

// Warning markers carried in AuditResult.Warnings.
const (
	WarnExtractionFallback = "extraction_fallback"
	WarnExtractionFailed   = "extraction_failed"
	WarnStyleSampleLimit   = "style_sample_limit"
	WarnTextSampleLimit    = "text_sample_limit"
)

// AuditResult is the immutable outcome of one audit. It is built once by
// Aggregate or Failed; consumers must not modify it.
type AuditResult struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	FastMode  bool      `json:"fast_mode"`

	Colors          []style.ColorJudgment   `json:"colors"`
	ColorAccuracy   float64                 `json:"color_accuracy"`
	Spacing         []style.SpacingJudgment `json:"spacing"`
	SpacingAccuracy *float64                `json:"spacing_accuracy"`
	Font            style.FontJudgment      `json:"font"`

	DigitalStamp detect.Signal         `json:"digital_stamp"`
	SearchBar    detect.Signal         `json:"search_bar"`
	Logo         detect.LogoSignal     `json:"logo"`
	Sitemap      detect.SitemapSignal  `json:"sitemap"`
	Language     detect.LanguageSignal `json:"language"`

	Captures Captures        `json:"captures"`
	Network  *NetworkMetrics `json:"network,omitempty"`

	Attempts        int               `json:"attempts"`
	DurationMs      int64             `json:"duration_ms"`
	Warnings        []string          `json:"warnings"`
	DetectorErrors  map[string]string `json:"detector_errors,omitempty"`
	NavigationError string            `json:"navigation_error,omitempty"`
}

// Passed reports whether every mandatory check succeeded.
func (r *AuditResult) Passed() bool {
	return r.NavigationError == "" && r.Font.FinalMatch && r.DigitalStamp.Present && r.SearchBar.Present
}

// Inputs is everything Aggregate assembles into a result.
type Inputs struct {
	URL      string
	Title    string
	FastMode bool
	Started  time.Time

	Colors  style.ColorReport
	Spacing style.SpacingReport
	Font    style.FontJudgment

	DigitalStamp detect.Signal
	SearchBar    detect.Signal
	Logo         detect.LogoSignal
	Sitemap      detect.SitemapSignal
	Language     detect.LanguageSignal

	Captures       Captures
	Network        *NetworkMetrics
	Attempts       int
	Warnings       []string
	DetectorErrors map[string]string
}

// Aggregate assembles and timestamps a result. It makes no judgments.
func Aggregate(in Inputs, clock Clock) *AuditResult {
	if clock == nil {
		clock = RealClock{}
	}
	now := clock.Now()

	r := &AuditResult{
		URL:             in.URL,
		Timestamp:       now,
		Title:           in.Title,
		FastMode:        in.FastMode,
		Colors:          append([]style.ColorJudgment{}, in.Colors.Judgments...),
		ColorAccuracy:   in.Colors.Accuracy,
		Spacing:         append([]style.SpacingJudgment{}, in.Spacing.Judgments...),
		SpacingAccuracy: in.Spacing.Accuracy,
		Font:            in.Font,
		DigitalStamp:    in.DigitalStamp,
		SearchBar:       in.SearchBar,
		Logo:            in.Logo,
		Sitemap:         in.Sitemap,
		Language:        in.Language,
		Captures:        in.Captures,
		Network:         in.Network,
		Attempts:        in.Attempts,
		Warnings:        append([]string{}, in.Warnings...),
	}
	if !in.Started.IsZero() {
		r.DurationMs = now.Sub(in.Started).Milliseconds()
	}
	if len(in.DetectorErrors) > 0 {
		r.DetectorErrors = make(map[string]string, len(in.DetectorErrors))
		for k, v := range in.DetectorErrors {
			r.DetectorErrors[k] = v
		}
	}
	return r
}

// Failed is the degraded record for an audit that produced no page data.
// Every signal is absent and every accuracy is zero or nil.
func Failed(url string, fast bool, err error, clock Clock) *AuditResult {
	msg := "audit failed"
	if err != nil {
		msg = err.Error()
	}
	r := Aggregate(Inputs{
		URL:          url,
		FastMode:     fast,
		Font:         style.FontJudgment{CollectedFamilies: []string{}},
		DigitalStamp: detect.Absent(),
		SearchBar:    detect.Absent(),
		Logo:         detect.LogoSignal{Signal: detect.Absent()},
		Sitemap:      emptySitemaps(),
		Language:     detect.LanguageSignal{Signal: detect.Absent(), Classification: detect.LanguageUnknown},
	}, clock)
	r.NavigationError = msg
	var nav *NavigationError
	if errors.As(err, &nav) {
		r.Attempts = nav.Attempts
	}
	return r
}
