package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ramworld21/sda-auditor/detect"
	"github.com/ramworld21/sda-auditor/fetch"
)

type navCall struct {
	URL     string
	Timeout time.Duration
	Wait    WaitCondition
}

// fakeSession records every call and serves canned page data.
type fakeSession struct {
	mu sync.Mutex

	// navErrs is consumed one entry per attempt; the last entry repeats.
	navErrs []error
	// hang makes Navigate block until its context ends.
	hang bool
	// hangShots does the same for Screenshot.
	hangShots bool

	snap    *snapshot
	evalErr error
	html    string
	title   string

	responses []ResponseEvent
	listeners []func(ResponseEvent)

	navCalls  []navCall
	scripts   []string
	blocked   []ResourceType
	viewports [][2]int
	shots     []bool
	closed    bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration, wait WaitCondition) error {
	s.mu.Lock()
	s.navCalls = append(s.navCalls, navCall{URL: url, Timeout: timeout, Wait: wait})
	attempt := len(s.navCalls)
	hang := s.hang
	var err error
	if len(s.navErrs) > 0 {
		err = s.navErrs[min(attempt, len(s.navErrs))-1]
	}
	listeners := append([]func(ResponseEvent){}, s.listeners...)
	responses := append([]ResponseEvent{}, s.responses...)
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	for _, r := range responses {
		for _, fn := range listeners {
			fn(r)
		}
	}
	return nil
}

func (s *fakeSession) Evaluate(_ context.Context, script string, out any) error {
	s.mu.Lock()
	s.scripts = append(s.scripts, script)
	snap, evalErr := s.snap, s.evalErr
	s.mu.Unlock()

	if evalErr != nil {
		return evalErr
	}
	if snap == nil {
		snap = &snapshot{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *fakeSession) OuterHTML(context.Context) (string, error) {
	if s.html == "" {
		return "", errors.New("no document")
	}
	return s.html, nil
}

func (s *fakeSession) Title(context.Context) (string, error) { return s.title, nil }

func (s *fakeSession) SetViewport(_ context.Context, w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewports = append(s.viewports, [2]int{w, h})
	return nil
}

func (s *fakeSession) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	s.mu.Lock()
	s.shots = append(s.shots, fullPage)
	hang := s.hangShots
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte("\x89PNG fake"), nil
}

func (s *fakeSession) BlockResourceTypes(_ context.Context, types ...ResourceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, types...)
	return nil
}

func (s *fakeSession) OnResponse(fn func(ResponseEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBrowser struct {
	session *fakeSession
	err     error
}

func (b *fakeBrowser) Open(context.Context) (Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// offlineFetcher fails every candidate request.
type offlineFetcher struct{}

func (offlineFetcher) Fetch(_ context.Context, _ string, rawURL string) (*fetch.Response, error) {
	return nil, &fetch.CandidateFetchError{URL: rawURL, Err: errors.New("offline")}
}

func offline() Option {
	return withFetcherFactory(func(fetch.Options, *slog.Logger) detect.Fetcher { return offlineFetcher{} })
}

// memStore keeps captures in memory.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memStore) Save(_ context.Context, png []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	name := "mem-" + string(rune('a'+len(m.files))) + ".png"
	m.files[name] = png
	return name, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// samplePage is a compliant government page.
func samplePage() *snapshot {
	return &snapshot{
		Page: detect.Page{
			URL:   "https://moh.gov.sa/",
			Title: "وزارة الصحة",
			Lang:  "ar",
			Text:  "مسجل لدى هيئة الحكومة الرقمية رقم التسجيل 20231",
			Images: []detect.Image{
				{Src: "/assets/dga-stamp.svg", Alt: "ختم", Width: 100, Height: 40, Visible: true},
			},
			Inputs: []detect.Input{{Type: "search", Name: "q"}},
		},
		Colors:            []string{"rgb(27, 131, 84)", "rgba(0, 0, 0, 0)", "rgb(255, 0, 255)", "rgb(27,131,84)"},
		Spacing:           []string{"8px", "0px", "17px", "auto"},
		Families:          []string{`"IBM Plex Sans Arabic", sans-serif`},
		FontSamples:       []string{`"IBM Plex Sans Arabic", sans-serif`, "Arial"},
		FontFaceAvailable: false,
	}
}
