package scanner

import (
	"errors"
	"fmt"
)

// ErrMissingTokens is returned by NewEngine when no usable design tokens are given.
var ErrMissingTokens = errors.New("design tokens are missing or empty")

// NavigationError is returned once every navigation attempt has failed.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError reports a failed in-page evaluation.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
