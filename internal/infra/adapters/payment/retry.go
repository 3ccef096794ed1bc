package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momo-subscription/internal/domain"
)

// retryableError marks a transient failure (transport, 5xx, 429).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error { return &retryableError{err: err} }

// retryPolicy runs an operation up to attempts times with exponential
// backoff (base, 2*base, 4*base ...). Each attempt gets its own deadline.
type retryPolicy struct {
	attempts   int
	base       time.Duration
	perAttempt time.Duration
}

func (p retryPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := p.base << (i - 1)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("%w: %s: %w", domain.ErrGatewayUnavailable, op, ctx.Err())
			case <-t.C:
			}
		}

		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.perAttempt > 0 {
			actx, cancel = context.WithTimeout(ctx, p.perAttempt)
		}
		err := fn(actx)
		cancel()
		if err == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		last = re.err
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %w", domain.ErrGatewayUnavailable, op, attempts, last)
}
