package scanner

import (
	"context"
	"time"
)

// WaitCondition is how long a navigation waits before it counts as loaded.
type WaitCondition string

const (
	WaitDOMParsed      WaitCondition = "dom_parsed"
	WaitLoadComplete   WaitCondition = "load_complete"
	WaitNetworkSettled WaitCondition = "network_settled"
)

// ResourceType names a class of subresource requests.
type ResourceType string

const (
	ResourceImage ResourceType = "Image"
	ResourceMedia ResourceType = "Media"
	ResourceFont  ResourceType = "Font"
)

// ResponseEvent is one finished network response.
type ResponseEvent struct {
	URL          string
	Status       int
	MimeType     string
	ResourceType string
	// Bytes is the encoded transfer size, filled in when loading finishes.
	Bytes int64
}

// Browser opens page sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one page owned by a single scan.
type Session interface {
	// Navigate loads url and blocks until wait is satisfied or timeout passes.
	Navigate(ctx context.Context, url string, timeout time.Duration, wait WaitCondition) error
	// Evaluate runs a self-contained script and decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error
	OuterHTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	SetViewport(ctx context.Context, width, height int) error
	// Screenshot returns a PNG of the current viewport or the full page.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// BlockResourceTypes fails every later request of the given types.
	BlockResourceTypes(ctx context.Context, types ...ResourceType) error
	// OnResponse registers a passive listener. It must not block.
	OnResponse(fn func(ResponseEvent))
	Close() error
}
