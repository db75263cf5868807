package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of idempotent upstream calls.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy is used by clients that were not given one.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxElapsed: 5 * time.Second}

// Retry runs op under policy with exponential backoff. Non-retryable
// StatusErrors, errors wrapped with backoff.Permanent and context
// cancellation end the loop at once.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxAttempts),
	}
	if policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsed))
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
