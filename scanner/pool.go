package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
)

// DefaultPoolSize bounds the number of concurrently running browsers.
const DefaultPoolSize = 4

// ErrPoolClosed is returned by Acquire after Shutdown.
var ErrPoolClosed = errors.New("browser pool is shut down")

// PoolOptions configures the headless browsers of a BrowserPool.
type PoolOptions struct {
	Size      int
	NoSandbox bool
	UserAgent string
	// ExecPath overrides the browser binary chromedp looks up.
	ExecPath string
	// Timeouts bounds the session operations; zero fields take defaults.
	Timeouts SessionTimeouts
}

// BrowserPool hands out browser instances exclusively and implements Browser.
type BrowserPool struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	available   chan *BrowserInstance
	maxSize     int
	created     int
	closed      bool
	timeouts    SessionTimeouts
	logger      *slog.Logger
}

// BrowserInstance is one browser process owned by the pool.
type BrowserInstance struct {
	ctx    context.Context
	cancel context.CancelFunc
	pool   *BrowserPool
	inUse  bool
}

func NewBrowserPool(opts PoolOptions, logger *slog.Logger) *BrowserPool {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Size <= 0 {
		opts.Size = DefaultPoolSize
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("lang", "ar-SA,ar,en"),

		chromedp.Flag("js-flags", "--max-old-space-size=512"),
		chromedp.Flag("disable-features", "TranslateUI,BlinkGenPropertyTrees"),
		chromedp.WindowSize(1440, 900),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	// only for containers where the sandbox cannot start
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &BrowserPool{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		available:   make(chan *BrowserInstance, opts.Size),
		maxSize:     opts.Size,
		timeouts:    opts.Timeouts.withDefaults(),
		logger:      logger,
	}
}

// Acquire returns an idle instance, starts a new one while under the size
// limit, or waits for a release.
func (p *BrowserPool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	select {
	case instance, ok := <-p.available:
		if !ok {
			return nil, ErrPoolClosed
		}
		instance.inUse = true
		return instance, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created >= p.maxSize {
		p.mu.Unlock()

		select {
		case instance, ok := <-p.available:
			if !ok {
				return nil, ErrPoolClosed
			}
			instance.inUse = true
			return instance, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	browserCtx, browserCancel := chromedp.NewContext(p.allocCtx)
	p.created++
	p.mu.Unlock()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		return nil, err
	}
	p.logger.Debug("browser started", "created", p.Stats().Created)

	return &BrowserInstance{
		ctx:    browserCtx,
		cancel: browserCancel,
		pool:   p,
		inUse:  true,
	}, nil
}

func (p *BrowserPool) Release(instance *BrowserInstance) {
	if instance == nil || !instance.inUse {
		return
	}
	instance.inUse = false

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		instance.cancel()
		return
	}

	select {
	case p.available <- instance:
	default:
		instance.cancel()
		p.created--
	}
}

// NewTab opens a tab in the instance that is closed when ctx ends.
func (b *BrowserInstance) NewTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)

	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	return tabCtx, tabCancel
}

// Open acquires an instance and opens a fresh tab session on it.
func (p *BrowserPool) Open(ctx context.Context) (Session, error) {
	instance, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := instance.NewTab(ctx)
	s, err := newChromeSession(tabCtx, func() {
		tabCancel()
		p.Release(instance)
	}, p.timeouts, p.logger)
	if err != nil {
		tabCancel()
		p.Release(instance)
		return nil, err
	}
	return s, nil
}

func (p *BrowserPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.available)
	for instance := range p.available {
		instance.cancel()
	}

	p.allocCancel()
	p.created = 0

	p.logger.Info("browser pool shut down")
}

type PoolStats struct {
	MaxSize   int `json:"max_size"`
	Created   int `json:"created"`
	Available int `json:"available"`
}

func (p *BrowserPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		MaxSize:   p.maxSize,
		Created:   p.created,
		Available: len(p.available),
	}
}
