package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// SessionTimeouts bounds each browser operation other than navigation,
// which carries its own per-attempt timeout.
type SessionTimeouts struct {
	Evaluate   time.Duration
	DOM        time.Duration
	Viewport   time.Duration
	Screenshot time.Duration
	Intercept  time.Duration
}

// DefaultSessionTimeouts leaves room for the font wait of the extraction
// script and for full-page captures of long pages.
var DefaultSessionTimeouts = SessionTimeouts{
	Evaluate:   30 * time.Second,
	DOM:        10 * time.Second,
	Viewport:   5 * time.Second,
	Screenshot: 20 * time.Second,
	Intercept:  5 * time.Second,
}

func (t SessionTimeouts) withDefaults() SessionTimeouts {
	def := DefaultSessionTimeouts
	if t.Evaluate <= 0 {
		t.Evaluate = def.Evaluate
	}
	if t.DOM <= 0 {
		t.DOM = def.DOM
	}
	if t.Viewport <= 0 {
		t.Viewport = def.Viewport
	}
	if t.Screenshot <= 0 {
		t.Screenshot = def.Screenshot
	}
	if t.Intercept <= 0 {
		t.Intercept = def.Intercept
	}
	return t
}

// chromeSession is a Session backed by one chromedp tab.
type chromeSession struct {
	ctx      context.Context
	release  func()
	logger   *slog.Logger
	timeouts SessionTimeouts

	mu        sync.Mutex
	listeners []func(ResponseEvent)
	pending   map[network.RequestID]ResponseEvent
	blocked   map[network.ResourceType]bool
	closeOnce sync.Once
}

func newChromeSession(tabCtx context.Context, release func(), timeouts SessionTimeouts, logger *slog.Logger) (*chromeSession, error) {
	s := &chromeSession{
		ctx:      tabCtx,
		release:  release,
		logger:   logger,
		timeouts: timeouts.withDefaults(),
		pending:  make(map[network.RequestID]ResponseEvent),
		blocked:  make(map[network.ResourceType]bool),
	}

	// the first Run creates the target, so it must not carry a deadline
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	chromedp.ListenTarget(tabCtx, s.handleEvent)
	return s, nil
}

// run executes actions on the tab, aborting when ctx ends or timeout passes.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string, timeout time.Duration, wait WaitCondition) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	switch wait {
	case WaitLoadComplete:
		actions = append(actions, chromedp.Poll(`document.readyState === "complete"`, nil, chromedp.WithPollingInterval(100*time.Millisecond)))
	case WaitNetworkSettled:
		actions = append(actions, WaitWithTimeout(timeout))
	default:
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	return s.run(ctx, timeout, actions...)
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, s.timeouts.Evaluate, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (s *chromeSession) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.timeouts.DOM, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, s.timeouts.DOM, chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) SetViewport(ctx context.Context, width, height int) error {
	return s.run(ctx, s.timeouts.Viewport, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (s *chromeSession) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		// quality 100 selects PNG
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := s.run(ctx, s.timeouts.Screenshot, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) BlockResourceTypes(ctx context.Context, types ...ResourceType) error {
	if len(types) == 0 {
		return nil
	}

	patterns := make([]*fetch.RequestPattern, 0, len(types))
	s.mu.Lock()
	for _, t := range types {
		rt := network.ResourceType(t)
		s.blocked[rt] = true
		patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: rt})
	}
	s.mu.Unlock()

	return s.run(ctx, s.timeouts.Intercept, fetch.Enable().WithPatterns(patterns))
}

func (s *chromeSession) OnResponse(fn func(ResponseEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(s.release)
	return nil
}

func (s *chromeSession) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		s.mu.Lock()
		s.pending[e.RequestID] = ResponseEvent{
			URL:          e.Response.URL,
			Status:       int(e.Response.Status),
			MimeType:     e.Response.MimeType,
			ResourceType: string(e.Type),
		}
		s.mu.Unlock()

	case *network.EventLoadingFinished:
		s.mu.Lock()
		re, ok := s.pending[e.RequestID]
		delete(s.pending, e.RequestID)
		listeners := append([]func(ResponseEvent){}, s.listeners...)
		s.mu.Unlock()
		if !ok {
			return
		}
		re.Bytes = int64(e.EncodedDataLength)
		for _, fn := range listeners {
			fn(re)
		}

	case *network.EventLoadingFailed:
		s.mu.Lock()
		delete(s.pending, e.RequestID)
		s.mu.Unlock()

	case *fetch.EventRequestPaused:
		// handlers must not block the event loop
		go s.failPaused(e)
	}
}

func (s *chromeSession) failPaused(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(s.ctx, c.Target)

	s.mu.Lock()
	block := s.blocked[e.ResourceType]
	s.mu.Unlock()

	var err error
	if block {
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(execCtx)
	}
	if err != nil && s.ctx.Err() == nil {
		s.logger.Debug("paused request not handled", "url", requestURL(e), "error", err)
	}
}

func requestURL(e *fetch.EventRequestPaused) string {
	if e.Request == nil {
		return ""
	}
	return e.Request.URL
}

// WaitWithTimeout waits for the body and then until no new resource entries
// appear for 500ms.
func WaitWithTimeout(timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := chromedp.WaitReady("body").Do(timeoutCtx); err != nil {
			return err
		}

		return chromedp.Poll(`
			new Promise(resolve => {
				let lastCount = performance.getEntriesByType('resource').length;
				let stableTime = 0;
				const check = () => {
					const currentCount = performance.getEntriesByType('resource').length;
					if (currentCount === lastCount) {
						stableTime += 100;
						if (stableTime >= 500) {
							resolve(true);
							return;
						}
					} else {
						stableTime = 0;
						lastCount = currentCount;
					}
					setTimeout(check, 100);
				};
				setTimeout(check, 100);
			})
		`, nil, chromedp.WithPollingTimeout(timeout)).Do(timeoutCtx)
	})
}
