package detect

import (
	"fmt"
	"runtime/debug"
)

// EvidenceKind tags what an Evidence item points at.
type EvidenceKind string

const (
	EvidencePhrase    EvidenceKind = "phrase_match"
	EvidenceImage     EvidenceKind = "image_match"
	EvidenceLink      EvidenceKind = "link_match"
	EvidenceSVG       EvidenceKind = "svg_match"
	EvidenceAttribute EvidenceKind = "attribute_match"
)

// Evidence is one observation supporting a signal.
type Evidence struct {
	Kind   EvidenceKind `json:"kind"`
	Detail string       `json:"detail"`
	Value  string       `json:"value,omitempty"`
}

// Signal is the verdict of one heuristic detector.
type Signal struct {
	Present         bool       `json:"present"`
	ConfidenceScore int        `json:"confidence_score"`
	Evidence        []Evidence `json:"evidence"`
	// Reason is a short human-readable summary for reports.
	Reason string `json:"reason,omitempty"`
}

// Absent is the signal reported when a detector found nothing or failed.
func Absent() Signal {
	return Signal{Evidence: []Evidence{}}
}

// DetectorError wraps a failure inside a single detector.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// Guard runs fn and turns an error or panic into a *DetectorError together
// with the supplied fallback value.
func Guard[T any](name string, fallback T, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = fallback
			err = &DetectorError{Detector: name, Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()

	v, err := fn()
	if err != nil {
		return fallback, &DetectorError{Detector: name, Err: err}
	}
	return v, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
