// Package fetch performs the small outbound requests a scan makes besides the
// page load itself: logo candidates, robots.txt and sitemap probes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 8 * time.Second
	DefaultMaxBody   = 2 << 20
	DefaultRate      = 8.0
	DefaultBurst     = 4
	DefaultCacheSize = 128
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// CandidateFetchError reports a failed candidate request. Callers move on to
// the next candidate.
type CandidateFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *CandidateFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *CandidateFetchError) Unwrap() error { return e.Err }

// Response is a fully read, size-capped response.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// MediaType returns the lower-cased media type without parameters.
func (r *Response) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(r.ContentType, ";")[0]))
	}
	return mt
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	MaxBody   int64
	UserAgent string
	Rate      float64
	Burst     int
	CacheSize int
	// Guard vets every URL before it is requested, e.g. against private hosts.
	Guard func(ctx context.Context, rawURL string) error
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client is owned by a single scan. Its cache and rate limiter are not shared.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, *Response]
	opts    Options
	logger  *slog.Logger
}

// New creates a Client, filling zero options with defaults.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, *Response](opts.CacheSize)
	if err != nil {
		panic(err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				if opts.Guard != nil {
					return opts.Guard(req.Context(), req.URL.String())
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		cache:   cache,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch issues method against rawURL with the per-request timeout. Non-2xx
// statuses return the response together with a *CandidateFetchError.
func (c *Client) Fetch(ctx context.Context, method, rawURL string) (*Response, error) {
	key := method + " " + rawURL
	if cached, ok := c.cache.Get(key); ok {
		return cached, statusError(cached)
	}

	if c.opts.Guard != nil {
		if err := c.opts.Guard(ctx, rawURL); err != nil {
			return nil, &CandidateFetchError{URL: rawURL, Err: err}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &CandidateFetchError{URL: rawURL, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return nil, &CandidateFetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept-Language", "ar,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("candidate fetch failed", "url", rawURL, "error", err)
		return nil, &CandidateFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	out := &Response{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBody))
		if err != nil {
			return nil, &CandidateFetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
		}
		out.Body = body
	}

	c.cache.Add(key, out)
	return out, statusError(out)
}

// Get is Fetch with GET.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.Fetch(ctx, http.MethodGet, rawURL)
}

func statusError(r *Response) error {
	if r.Status >= 200 && r.Status < 300 {
		return nil
	}
	return &CandidateFetchError{URL: r.URL, Status: r.Status}
}
