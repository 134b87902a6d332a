package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ramworld21/sda-auditor/detect"
	"github.com/ramworld21/sda-auditor/fetch"
	"github.com/ramworld21/sda-auditor/style"
	"github.com/ramworld21/sda-auditor/tokens"
)

// TokenSource yields the token set for the next audit. *tokens.Store
// satisfies it, which lets a watcher swap tokens between audits.
type TokenSource interface {
	Get() *tokens.DesignTokens
}

type fixedTokens struct{ t *tokens.DesignTokens }

func (f fixedTokens) Get() *tokens.DesignTokens { return f.t }

// Engine runs audits. It is safe for concurrent use; only the token set is
// shared between audits.
type Engine struct {
	tokens     TokenSource
	browser    Browser
	captures   CaptureStore
	clock      Clock
	logger     *slog.Logger
	plan       NavPlan
	thresholds Thresholds
	stamp      detect.StampRules
	language   detect.LanguageRules
	fetchOpts  fetch.Options
	newFetcher func(fetch.Options, *slog.Logger) detect.Fetcher

	captureTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithCaptureStore(s CaptureStore) Option { return func(e *Engine) { e.captures = s } }

// WithCaptureTimeout bounds each screenshot and viewport change.
func WithCaptureTimeout(d time.Duration) Option { return func(e *Engine) { e.captureTimeout = d } }

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithNavPlan(p NavPlan) Option { return func(e *Engine) { e.plan = p } }

func WithThresholds(t Thresholds) Option { return func(e *Engine) { e.thresholds = t } }

func WithStampRules(r detect.StampRules) Option { return func(e *Engine) { e.stamp = r } }

func WithLanguageRules(r detect.LanguageRules) Option { return func(e *Engine) { e.language = r } }

// WithFetchOptions sets the options of the per-audit outbound client.
func WithFetchOptions(o fetch.Options) Option { return func(e *Engine) { e.fetchOpts = o } }

// WithTokenSource replaces the fixed token set given to NewEngine.
func WithTokenSource(src TokenSource) Option { return func(e *Engine) { e.tokens = src } }

// withFetcherFactory swaps the outbound client, for tests.
func withFetcherFactory(fn func(fetch.Options, *slog.Logger) detect.Fetcher) Option {
	return func(e *Engine) { e.newFetcher = fn }
}

// NewEngine returns ErrMissingTokens when t is nil or empty.
func NewEngine(t *tokens.DesignTokens, browser Browser, opts ...Option) (*Engine, error) {
	if t == nil || len(t.Palette()) == 0 || len(t.Spacing()) == 0 {
		return nil, ErrMissingTokens
	}
	if browser == nil {
		return nil, errors.New("scanner: browser is required")
	}

	e := &Engine{
		tokens:     fixedTokens{t},
		browser:    browser,
		clock:      RealClock{},
		logger:     slog.Default(),
		plan:       DefaultNavPlan(),
		thresholds: DefaultThresholds(),
		stamp:      detect.DefaultStampRules(),
		language:   detect.DefaultLanguageRules(),
		newFetcher: func(o fetch.Options, l *slog.Logger) detect.Fetcher { return fetch.New(o, l) },

		captureTimeout: DefaultCaptureTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.thresholds = e.thresholds.withDefaults()
	return e, nil
}

// RunAudit audits one page. It always returns a result: navigation failure,
// timeout and cancellation yield a Failed record.
func (e *Engine) RunAudit(ctx context.Context, url string, opts Options) *AuditResult {
	started := e.clock.Now()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	progress := opts.OnProgress
	if progress == nil {
		progress = func(string, int, int) {}
	}
	log := e.logger.With("url", url, "fast_mode", opts.FastMode)
	log.Info("audit started")

	res, err := e.audit(ctx, url, opts.FastMode, started, progress, log)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("audit aborted after %s: %w", e.clock.Now().Sub(started).Round(time.Millisecond), ctx.Err())
		}
		log.Warn("audit failed", "error", err)
		fr := Failed(url, opts.FastMode, err, e.clock)
		fr.DurationMs = e.clock.Now().Sub(started).Milliseconds()
		return fr
	}

	progress(StageComplete, 1, 1)
	log.Info("audit finished",
		"duration_ms", res.DurationMs,
		"color_accuracy", res.ColorAccuracy,
		"font", res.Font.FinalMatch,
		"stamp", res.DigitalStamp.Present,
		"search", res.SearchBar.Present,
		"warnings", len(res.Warnings))
	return res
}

func (e *Engine) audit(ctx context.Context, url string, fast bool, started time.Time, progress ProgressFunc, log *slog.Logger) (*AuditResult, error) {
	tok := e.tokens.Get()
	if tok == nil {
		return nil, ErrMissingTokens
	}
	th := e.thresholds
	var warnings []string

	progress(StageOpening, 0, 0)
	session, err := e.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer session.Close()

	traffic := newNetworkCollector(url)
	session.OnResponse(traffic.observe)

	if fast {
		if err := session.BlockResourceTypes(ctx, ResourceImage, ResourceMedia, ResourceFont); err != nil {
			log.Warn("resource blocking unavailable", "error", err)
			warnings = append(warnings, "resource_blocking: "+err.Error())
		}
	}

	progress(StageNavigating, 0, len(e.plan.Attempts))
	nav := &navigator{
		plan:   e.plan,
		clock:  e.clock,
		logger: log,
		onState: func(s NavState, attempt int) {
			if s == StateNavigating {
				progress(StageNavigating, attempt, len(e.plan.Attempts))
			}
		},
	}
	attempts, err := nav.run(ctx, session, url)
	if err != nil {
		return nil, err
	}

	progress(StageExtracting, 0, 0)
	typo := tok.Typography()
	snap, fellBack, err := extract(ctx, session, url, newExtractOptions(fast, typo.Probes))
	if snap == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("page extraction failed, continuing with empty signals", "error", err)
		warnings = append(warnings, WarnExtractionFailed)
	} else if fellBack {
		log.Warn("extraction script failed, using raw html")
		warnings = append(warnings, WarnExtractionFallback)
	}
	if snap.StyleLimitHit {
		warnings = append(warnings, WarnStyleSampleLimit)
	}
	if snap.TextLimitHit {
		warnings = append(warnings, WarnTextSampleLimit)
	}

	title := snap.Page.Title
	if title == "" {
		if t, err := session.Title(ctx); err == nil {
			title = t
		}
	}

	samples := snap.Samples()
	colors := style.MatchColors(style.ValuesOf(samples, style.KindColor), tok.Palette(), th.ColorMatch)
	spacing := style.MatchSpacing(style.ValuesOf(samples, style.KindSpacing), tok.Spacing())

	matcher, err := style.NewFontMatcher(typo.Patterns)
	if err != nil {
		warnings = append(warnings, "font_patterns: "+err.Error())
		matcher, _ = style.NewFontMatcher(nil)
	}
	font := style.JudgeFont(snap.FontInput(), matcher, th.FontConfidence)

	page := &snap.Page
	fetcher := e.newFetcher(e.fetchOpts, log)
	stampRules := e.stamp
	stampRules.PresenceScore = th.StampPresence

	var (
		mu        sync.Mutex
		detErrs   = map[string]string{}
		stamp     detect.Signal
		search    detect.Signal
		logo      detect.LogoSignal
		sitemaps  detect.SitemapSignal
		language  detect.LanguageSignal
		captures  Captures
		captWarns []string
	)
	record := func(err error) {
		if err == nil {
			return
		}
		var de *detect.DetectorError
		mu.Lock()
		defer mu.Unlock()
		if errors.As(err, &de) {
			detErrs[de.Detector] = de.Err.Error()
		} else {
			detErrs["unknown"] = err.Error()
		}
		log.Warn("detector failed", "error", err)
	}

	progress(StageDetecting, 0, 5)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		stamp, err = detect.Guard("digital_stamp", detect.Absent(), func() (detect.Signal, error) {
			return detect.DetectStamp(page, stampRules), nil
		})
		record(err)
		return nil
	})
	g.Go(func() error {
		var err error
		search, err = detect.Guard("search_bar", detect.Absent(), func() (detect.Signal, error) {
			return detect.DetectSearchBar(page), nil
		})
		record(err)
		return nil
	})
	g.Go(func() error {
		var err error
		language, err = detect.Guard("language", detect.LanguageSignal{Signal: detect.Absent(), Classification: detect.LanguageUnknown},
			func() (detect.LanguageSignal, error) {
				return detect.DetectLanguage(page, e.language), nil
			})
		record(err)
		return nil
	})
	g.Go(func() error {
		var err error
		logo, err = detect.Guard("logo", detect.LogoSignal{Signal: detect.Absent()}, func() (detect.LogoSignal, error) {
			return detect.DiscoverLogo(ctx, page, fetcher), ctx.Err()
		})
		record(err)
		return nil
	})
	g.Go(func() error {
		var err error
		sitemaps, err = detect.Guard("sitemap", emptySitemaps(), func() (detect.SitemapSignal, error) {
			return detect.DiscoverSitemaps(ctx, page, fetcher), ctx.Err()
		})
		record(err)
		return nil
	})
	if e.captures != nil {
		g.Go(func() error {
			progress(StageCapturing, 0, 0)
			cctx, cancel := captureContext(ctx)
			defer cancel()
			captures, captWarns = captureAll(cctx, session, e.captures, e.clock, fast, e.captureTimeout)
			return nil
		})
	}
	_ = g.Wait()

	// partial results are dropped once the caller gave up
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	warnings = append(warnings, captWarns...)

	metrics := traffic.snapshot()
	return Aggregate(Inputs{
		URL:            url,
		Title:          title,
		FastMode:       fast,
		Started:        started,
		Colors:         colors,
		Spacing:        spacing,
		Font:           font,
		DigitalStamp:   stamp,
		SearchBar:      search,
		Logo:           logo,
		Sitemap:        sitemaps,
		Language:       language,
		Captures:       captures,
		Network:        &metrics,
		Attempts:       attempts,
		Warnings:       warnings,
		DetectorErrors: detErrs,
	}, e.clock), nil
}

func emptySitemaps() detect.SitemapSignal {
	return detect.SitemapSignal{
		Signal:        detect.Absent(),
		All:           []detect.SitemapEntry{},
		HumanReadable: []string{},
		Machine:       []string{},
		Other:         []string{},
	}
}
