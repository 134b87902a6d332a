package tokens

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store hands out the current token set. Scans grab a pointer once and keep
// it for their whole run, so a reload never changes tokens mid-scan.
type Store struct {
	current atomic.Pointer[DesignTokens]
}

// NewStore creates a store holding t.
func NewStore(t *DesignTokens) *Store {
	s := &Store{}
	s.current.Store(t)
	return s
}

func (s *Store) Get() *DesignTokens { return s.current.Load() }

func (s *Store) Set(t *DesignTokens) { s.current.Store(t) }

// Watcher reloads a token file into a Store when it changes on disk.
type Watcher struct {
	path     string
	store    *Store
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher watches the directory holding path. Editors often replace files
// instead of writing them in place, so the file itself is not watched.
func NewWatcher(path string, store *Store, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		store:    store,
		debounce: debounce,
		logger:   logger,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("token file change detected", "file", event.Name, "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("token watcher error", "error", err)

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	t, err := Load(w.path)
	if err != nil {
		w.logger.Warn("token reload failed, keeping previous set", "file", w.path, "error", err)
		return
	}
	w.store.Set(t)
	w.logger.Info("design tokens reloaded", "file", w.path, "colors", len(t.colors), "spacing", len(t.spacing))
}
