package adapter

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry. Each further retry doubles it.
const DefaultBackoff = 500 * time.Millisecond

// RetryPolicy controls how Retry repeats a failing publish.
type RetryPolicy struct {
	// Name prefixes returned errors (e.g. "redis", "webhook").
	Name string
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the delay before the first retry. Zero means DefaultBackoff.
	Backoff time.Duration
	// Permanent, when set, reports errors that must not be retried.
	Permanent func(error) bool
}

// Retry calls fn until it succeeds, the attempts are exhausted, fn returns
// a permanent error, or ctx is done. Backoff is exponential.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + max(p.Retries, 0)

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", p.Name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", p.Name, ctx.Err())
			case <-time.After(time.Duration(1<<uint(i-1)) * backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Permanent != nil && p.Permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", p.Name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", p.Name, attempts, lastErr)
}
