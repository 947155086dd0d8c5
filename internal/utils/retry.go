package utils

import (
	"context"
	"time"
)

// Retry runs fn up to maxAttempts times with a fixed delay between attempts.
// It returns nil on the first success and the last error once the attempts
// are exhausted. Context cancellation during the delay aborts with the
// context error.
func Retry(ctx context.Context, maxAttempts int, delay time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
