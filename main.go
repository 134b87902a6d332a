package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ramworld21/sda-auditor/config"
	"github.com/ramworld21/sda-auditor/fetch"
	"github.com/ramworld21/sda-auditor/logging"
	"github.com/ramworld21/sda-auditor/scanner"
	"github.com/ramworld21/sda-auditor/tokens"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sda-auditor", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	port := fs.Int("port", 0, "HTTP server port (serve mode)")
	target := fs.String("url", "", "audit this URL once and exit")
	fast := fs.Bool("fast", false, "fast mode: block heavy resources, sample less, one capture")
	tokensPath := fs.String("tokens", "", "design token file (YAML or JSON)")
	outDir := fs.String("out", "", "directory for screenshots")
	summary := fs.Bool("summary", false, "print a human-readable summary instead of JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *tokensPath != "" {
		cfg.TokensPath = *tokensPath
	}
	if *outDir != "" {
		cfg.CaptureDir = *outDir
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: logging.Format(cfg.LogFormat)})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *target != "" {
		return runCLI(ctx, cfg, logger, *target, *fast, *summary, os.Stdout)
	}
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

// app is everything an audit needs, shared by both entry points.
type app struct {
	engine *scanner.Engine
	pool   *scanner.BrowserPool
	store  *tokens.Store
	// watcher is nil unless token hot reload is enabled.
	watcher *tokens.Watcher
}

func newApp(cfg config.Config, logger *slog.Logger, watch bool) (*app, error) {
	t := tokens.Default()
	if cfg.TokensPath != "" {
		loaded, err := tokens.Load(cfg.TokensPath)
		if err != nil {
			return nil, err
		}
		t = loaded
	}
	store := tokens.NewStore(t)
	logger.Info("design tokens loaded", "name", t.Name(), "colors", len(t.Palette()), "spacing", len(t.Spacing()))

	var watcher *tokens.Watcher
	if watch && cfg.WatchTokens {
		w, err := tokens.NewWatcher(cfg.TokensPath, store, 500*time.Millisecond, logger)
		if err != nil {
			return nil, fmt.Errorf("watch tokens: %w", err)
		}
		watcher = w
	}

	pool := scanner.NewBrowserPool(scanner.PoolOptions{
		Size:      cfg.PoolSize,
		NoSandbox: cfg.NoSandbox,
		UserAgent: cfg.UserAgent,
		Timeouts:  scanner.SessionTimeouts{Screenshot: cfg.CaptureTimeout},
	}, logger)

	engine, err := scanner.NewEngine(t, pool,
		scanner.WithTokenSource(store),
		scanner.WithLogger(logger),
		scanner.WithCaptureStore(scanner.NewDirStore(cfg.CaptureDir)),
		scanner.WithCaptureTimeout(cfg.CaptureTimeout),
		scanner.WithFetchOptions(fetch.Options{
			UserAgent: cfg.UserAgent,
			Rate:      cfg.FetchRate,
			Burst:     cfg.FetchBurst,
			Guard:     scanner.NewFetchGuard(net.DefaultResolver),
		}),
	)
	if err != nil {
		pool.Shutdown()
		if watcher != nil {
			watcher.Stop()
		}
		return nil, err
	}

	if watcher != nil {
		watcher.Start()
	}
	return &app{engine: engine, pool: pool, store: store, watcher: watcher}, nil
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.pool.Shutdown()
}
