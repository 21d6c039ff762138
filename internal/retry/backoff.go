// Package retry runs fallible upstream calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/satriahrh/arunika-relay/domain"
)

// Operation is one attempt of an upstream call.
type Operation[T any] func(ctx context.Context) (T, error)

// NotifyFunc observes a failed attempt (zero-based) and the delay before the
// next one.
type NotifyFunc func(attempt int, err error, delay time.Duration)

type options struct {
	notify NotifyFunc
}

// Option configures Do.
type Option func(*options)

// WithNotify registers a callback invoked before every backoff wait.
func WithNotify(fn NotifyFunc) Option {
	return func(o *options) { o.notify = fn }
}

// Do calls op up to maxAttempts times. After failed attempt n it waits
// baseDelay * 2^n without jitter. Errors that are not retryable, such as an
// upstream 4xx, are returned immediately. When attempts run out the last
// error is returned.
func Do[T any](ctx context.Context, op Operation[T], maxAttempts int, baseDelay time.Duration, opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}

	attempt := 0
	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if o.notify != nil {
				o.notify(attempt-1, err, delay)
			}
		}),
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err != nil && !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, retryOpts...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return result, err
}

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) && upstream.IsClientError() {
		return false
	}
	return true
}
