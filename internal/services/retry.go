package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harmonia-sync/harmonia/internal/shared"
)

// RetryPolicy bounds how platform requests are retried. Only transient
// failures (rate limiting, 5xx) are retried; terminal errors like
// not-found or bad credentials fail immediately.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when configuration does
// not override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op, retrying transient failures with exponential backoff up
// to MaxAttempts total tries. Cancelled contexts stop the retry loop.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if shared.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
