package verifier

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrVisibilityTimeout matches any *VisibilityTimeoutError.
	ErrVisibilityTimeout = errors.New("visibility timeout")
	ErrWaitTimeout       = errors.New("timed out waiting for condition")
	ErrUnknownDriver     = errors.New("unknown browser driver")
	ErrEmptyScreenshot   = errors.New("screenshot is empty")
	ErrInvalidOptions    = errors.New("invalid options")
)

// VisibilityTimeoutError is returned when the placeholder element did not
// become visible within the configured timeout.
type VisibilityTimeoutError struct {
	URL         string
	Placeholder string
	Timeout     time.Duration
	Err         error
}

func (e *VisibilityTimeoutError) Error() string {
	return fmt.Sprintf("element with placeholder %q not visible on %s after %v", e.Placeholder, e.URL, e.Timeout)
}

func (e *VisibilityTimeoutError) Is(target error) bool {
	return target == ErrVisibilityTimeout
}

func (e *VisibilityTimeoutError) Unwrap() error {
	return e.Err
}
