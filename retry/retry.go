/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides the retry policy for backend calls and helpers running an operation
// under a github.com/cenkalti/backoff/v4 schedule.
package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// ErrorObserver is implemented by backoffs that adjust the next delay to the error of the failed attempt.
type ErrorObserver interface {
	ObserveError(err error)
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify is called before every sleep with the error and the delay (can be nil).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	return DoWithRetryTimer(ctx, p, isRetryable, notify, nil, fn)
}

// DoWithRetryTimer is like DoWithRetry but sleeps using timer (a real timer is used if nil).
func DoWithRetryTimer(
	ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, timer backoff.Timer, fn RetryableFunc,
) error {
	b := p.NewBackOff()
	observer, _ := b.(ErrorObserver)
	bctx := backoff.WithContext(b, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		if observer != nil {
			observer.ObserveError(err)
		}
		return err
	}
	return backoff.RetryNotifyWithTimer(op, bctx, notify, timer)
}
