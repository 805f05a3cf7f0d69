// Package retry provides the shared backoff policy for external calls.
// EmbeddingService, the vector store and the model gateway all retry through
// the same policy instead of carrying ad hoc loops.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/strideai/coach/plugin/ai/timeout"
)

// Policy describes a bounded jittered exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy shared by AI external calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: timeout.MaxRetryAttempts,
		BaseDelay:   timeout.RetryBaseDelay,
		MaxDelay:    timeout.RetryMaxDelay,
	}
}

// Do runs fn up to MaxAttempts times, sleeping a jittered exponential delay
// between attempts. A retryable decision is delegated to shouldRetry; when it
// is nil every error is retried. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay returns the sleep before the given attempt (1-based for retries),
// with full jitter to avoid thundering herds.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = timeout.RetryBaseDelay
	}

	backoff := base << (attempt - 1)
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	// Full jitter: uniform in [base/2, backoff].
	minDelay := base / 2
	if backoff <= minDelay {
		return backoff
	}
	return minDelay + time.Duration(rand.Int63n(int64(backoff-minDelay)))
}
