package scanner

import (
	"time"

	"github.com/ramworld21/sda-auditor/detect"
	"github.com/ramworld21/sda-auditor/style"
)

// Options tune a single RunAudit call.
type Options struct {
	// FastMode blocks heavy subresources, lowers the sampling caps and takes
	// only the full-page capture.
	FastMode bool
	// Timeout bounds the whole audit. Zero means DefaultAuditTimeout.
	Timeout time.Duration
	// OnProgress receives stage updates; it may be nil.
	OnProgress ProgressFunc
}

// ProgressFunc is called with progress updates during an audit.
type ProgressFunc func(stage string, current, total int)

// DefaultAuditTimeout covers the worst case of the default navigation plan
// plus extraction and captures.
const DefaultAuditTimeout = 3 * time.Minute

// Thresholds holds the named, overridable decision thresholds.
type Thresholds struct {
	ColorMatch     float64
	StampPresence  int
	FontConfidence int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ColorMatch:     style.DefaultColorMatchThreshold,
		StampPresence:  detect.DefaultStampPresenceScore,
		FontConfidence: style.DefaultFontConfidenceThreshold,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.ColorMatch <= 0 {
		t.ColorMatch = def.ColorMatch
	}
	if t.StampPresence <= 0 {
		t.StampPresence = def.StampPresence
	}
	if t.FontConfidence <= 0 {
		t.FontConfidence = def.FontConfidence
	}
	return t
}

// Progress stages reported through ProgressFunc.
const (
	StageOpening    = "Opening browser"
	StageNavigating = "Loading page"
	StageExtracting = "Extracting styles"
	StageDetecting  = "Running detectors"
	StageCapturing  = "Capturing screenshots"
	StageComplete   = "Complete"
)
