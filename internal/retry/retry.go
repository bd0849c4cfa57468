package retry

import (
	"context"
	"time"
)

// PolicyConfig contains configuration for fixed-delay retry
type PolicyConfig struct {
	Delay       time.Duration `json:"delay"`
	MaxAttempts int           `json:"max_attempts"`
}

// DefaultPolicyConfig returns a sensible default configuration. A zero
// MaxAttempts means retry indefinitely, which is what a reconnecting
// channel wants.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Delay:       3 * time.Second,
		MaxAttempts: 0,
	}
}

// Policy implements fixed-delay retry. Unlike an exponential backoff, a
// reconnecting chat channel retries at a constant cadence so the session
// recovers within a predictable window.
type Policy struct {
	config PolicyConfig
}

// NewPolicy creates a new fixed-delay retry policy
func NewPolicy(config PolicyConfig) *Policy {
	return &Policy{config: config}
}

// Delay returns the configured delay between attempts
func (p *Policy) Delay() time.Duration {
	return p.config.Delay
}

// Retry executes the operation until it succeeds, the attempt budget runs
// out, or the context is cancelled.
func (p *Policy) Retry(ctx context.Context, operation func() error) error {
	return p.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate executes the operation with fixed-delay retry, using
// a predicate to determine if errors are retryable. A non-retryable error
// fails immediately.
func (p *Policy) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if p.config.MaxAttempts > 0 && attempt >= p.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.config.Delay):
		}
	}

	return lastErr
}

// Wait blocks for one retry delay or until the context is cancelled. The
// channel manager uses it between reconnect attempts where the loop shape
// doesn't fit a callback.
func (p *Policy) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.Delay):
		return nil
	}
}
