package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff calculates the delay before a retry attempt. Attempt starts at 1
// for the first retry. Implementations must be safe for concurrent use.
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// Exponential implements exponential backoff with jitter. Jitter prevents
// thundering herd when multiple workers retry the same upstream at once.
type Exponential struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
func (e Exponential) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = 250 * time.Millisecond
	}

	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 10 * time.Second
	}

	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	// Zero jitter is intentionally allowed for deterministic behavior.
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(interval)
}

// Policy bounds automatic retries of a remote call. The zero value performs
// a single attempt with no retries.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first one.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff supplies the delay between attempts. Defaults to Exponential.
	Backoff Backoff
	// IsRetryable classifies errors. When nil every error is retried until
	// MaxAttempts is exhausted.
	IsRetryable func(error) bool
}

// Do runs fn under the policy, sleeping between attempts and respecting
// context cancellation. The last error is returned once attempts are
// exhausted or fn fails with a non-retryable error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential{}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(backoff.NextInterval(attempt)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
