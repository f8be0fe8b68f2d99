package verifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it returns true or timeout
// elapses. Errors from cond do not stop polling; the last one is attached to
// the ErrWaitTimeout returned on expiry. Cancellation of ctx returns the
// context error. A non-positive interval means DefaultPollInterval.
func Poll(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(waitCtx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %v", ErrWaitTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrWaitTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// PlaceholderSelector returns a CSS selector matching elements whose
// placeholder attribute equals text exactly.
func PlaceholderSelector(text string) string {
	var sb strings.Builder
	sb.WriteString(`[placeholder="`)
	for _, r := range text {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n' || r == '\r' || r == '\f':
			// CSS escapes line breaks as hex code points followed by a space.
			sb.WriteString(`\` + strconv.FormatInt(int64(r), 16) + ` `)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString(`"]`)
	return sb.String()
}
