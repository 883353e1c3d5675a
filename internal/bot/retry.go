package bot

import (
	"context"
	"time"
)

// maxRetryDelay caps the doubling backoff so a long RPC outage keeps
// probing at a steady rate instead of sleeping for minutes.
const maxRetryDelay = 10 * time.Second

// retryWithBackoff runs fn up to attempts+1 times, doubling the pause
// between tries starting from base. Cancelling the context aborts the
// pause; the final attempt's error is returned unwrapped.
func retryWithBackoff(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}

	var err error
	delay := base
	for try := 0; try <= attempts; try++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if try == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return err
}
