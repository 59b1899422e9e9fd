package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxBackoff caps a single retry delay.
const DefaultMaxBackoff = 30 * time.Second

// RetryPolicy describes how a publish is re-attempted.
//
// Attempts are 1 + Retries. The delay before retry n is Backoff * 2^(n-1),
// capped at MaxBackoff. An error that reports RetryAfter overrides the
// computed delay for the next attempt, subject to the same cap.
type RetryPolicy struct {
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Validate reports an invalid policy.
func (p RetryPolicy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", p.Retries)
	}
	return nil
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	return 1 + max(p.Retries, 0)
}

// delay returns the wait before retry n (n >= 1).
func (p RetryPolicy) delay(n int, last error) time.Duration {
	ceiling := p.MaxBackoff
	if ceiling <= 0 {
		ceiling = DefaultMaxBackoff
	}

	var hinted interface{ RetryAfter() time.Duration }
	if errors.As(last, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			return min(d, ceiling)
		}
	}

	d := p.Backoff
	for i := 1; i < n && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// Do runs attempt until it succeeds, returns a permanent error, the context
// ends, or the policy is exhausted. name prefixes returned errors.
func (p RetryPolicy) Do(ctx context.Context, name string, attempt func(context.Context) error) error {
	attempts := p.Attempts()
	var lastErr error

	for i := range attempts {
		if i > 0 {
			wait := time.NewTimer(p.delay(i, lastErr))
			select {
			case <-ctx.Done():
				wait.Stop()
				return fmt.Errorf("%s: canceled during backoff: %w", name, ctx.Err())
			case <-wait.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: canceled: %w", name, err)
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Do stops retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
