package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Viewport is a responsive capture size.
type Viewport struct {
	Name   string
	Width  int
	Height int
}

// ResponsiveViewports are captured after the full page in normal mode.
var ResponsiveViewports = []Viewport{
	{Name: "mobile", Width: 375, Height: 812},
	{Name: "tablet", Width: 768, Height: 1024},
	{Name: "desktop", Width: 1440, Height: 900},
}

// ViewportSettle is the pause before each capture.
const ViewportSettle = 700 * time.Millisecond

// Captures holds the opaque names of stored screenshots. Responsive entries
// are empty strings when they were not taken.
type Captures struct {
	FullPage string `json:"full_page"`
	Mobile   string `json:"mobile"`
	Tablet   string `json:"tablet"`
	Desktop  string `json:"desktop"`
}

func (c *Captures) set(name, file string) {
	switch name {
	case "mobile":
		c.Mobile = file
	case "tablet":
		c.Tablet = file
	case "desktop":
		c.Desktop = file
	}
}

// CaptureStore persists screenshot bytes and returns an opaque name.
type CaptureStore interface {
	Save(ctx context.Context, png []byte) (string, error)
}

// DirStore writes captures as snap-<uuid>.png files into a directory.
type DirStore struct {
	dir  string
	once sync.Once
	err  error
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (d *DirStore) Dir() string { return d.dir }

func (d *DirStore) Save(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.once.Do(func() {
		d.err = os.MkdirAll(d.dir, 0o755)
	})
	if d.err != nil {
		return "", fmt.Errorf("create capture dir: %w", d.err)
	}

	name := "snap-" + uuid.New().String() + ".png"
	if err := os.WriteFile(filepath.Join(d.dir, name), png, 0o644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}
	return name, nil
}

// DefaultCaptureTimeout bounds each single capture. captureReserve is kept
// back from the audit deadline for aggregation.
const (
	DefaultCaptureTimeout = 20 * time.Second
	captureReserve        = time.Second
)

// captureContext ends the capture phase ahead of the audit deadline.
func captureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := min(captureReserve, time.Until(deadline)/4)
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// captureAll takes the full-page screenshot and, unless fast, the responsive
// set. Failures and timeouts are returned as warnings so earlier captures
// are kept.
func captureAll(ctx context.Context, s Session, store CaptureStore, clock Clock, fast bool, timeout time.Duration) (Captures, []string) {
	var out Captures
	var warnings []string
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}

	if err := clock.SleepContext(ctx, ViewportSettle); err != nil {
		return out, append(warnings, "capture_full_page: "+err.Error())
	}
	name, err := captureOne(ctx, s, store, true, timeout)
	out.FullPage = name
	if err != nil {
		warnings = append(warnings, "capture_full_page: "+err.Error())
	}
	if fast {
		return out, warnings
	}

	for _, vp := range ResponsiveViewports {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, "capture_"+vp.Name+": "+err.Error())
			continue
		}
		vctx, cancel := context.WithTimeout(ctx, timeout)
		err := s.SetViewport(vctx, vp.Width, vp.Height)
		cancel()
		if err != nil {
			warnings = append(warnings, "capture_"+vp.Name+": "+err.Error())
			continue
		}
		if err := clock.SleepContext(ctx, ViewportSettle); err != nil {
			warnings = append(warnings, "capture_"+vp.Name+": "+err.Error())
			continue
		}
		name, err := captureOne(ctx, s, store, false, timeout)
		out.set(vp.Name, name)
		if err != nil {
			warnings = append(warnings, "capture_"+vp.Name+": "+err.Error())
		}
	}
	return out, warnings
}

func captureOne(ctx context.Context, s Session, store CaptureStore, fullPage bool, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shot, err := s.Screenshot(ctx, fullPage)
	if err != nil {
		return "", err
	}
	return store.Save(ctx, shot)
}
