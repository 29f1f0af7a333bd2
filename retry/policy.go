/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-apiorch/apierr"
)

// Default values of BackendPolicy.
const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 16 * time.Second
	DefaultMaxAttempts = 5
)

// maxShift keeps BaseDelay<<attempt from overflowing.
const maxShift = 32

// Decision is the outcome of BackendPolicy.ShouldRetry.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// BackendPolicy retries rate-limited backend calls (and, optionally, transient network failures)
// with delays BaseDelay*2^attempt capped by MaxDelay.
type BackendPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds the number of retries (not counting the first call).
	MaxAttempts int
	// RetryTransient enables retries of apierr.KindTransientNetwork failures.
	RetryTransient bool
	// HonorRetryAfter replaces the computed delay with the backend-suggested one (still capped by MaxDelay).
	HonorRetryAfter bool
}

var _ Policy = BackendPolicy{}

// NewDefaultBackendPolicy returns a BackendPolicy with the default schedule: 1s, 2s, 4s, 8s, 16s.
func NewDefaultBackendPolicy() BackendPolicy {
	return BackendPolicy{BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay, MaxAttempts: DefaultMaxAttempts}
}

// Validate checks the policy parameters.
func (p BackendPolicy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay should be positive, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay (%s) should not be less than base delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts should not be negative, got %d", p.MaxAttempts)
	}
	return nil
}

// Retryable reports whether failures of the given kind are retried at all.
func (p BackendPolicy) Retryable(kind apierr.Kind) bool {
	switch kind {
	case apierr.KindRateLimited:
		return true
	case apierr.KindTransientNetwork:
		return p.RetryTransient
	}
	return false
}

// IsRetryable is an IsRetryable built on the kind of err.
func (p BackendPolicy) IsRetryable(err error) bool {
	return p.Retryable(apierr.KindOf(err))
}

// Delay returns the delay before retry number attempt (0 for the first retry).
func (p BackendPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= maxShift {
		return p.MaxDelay
	}
	d := p.BaseDelay << uint(attempt)
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry decides whether a failure of the given kind is retried after attempt previous retries.
func (p BackendPolicy) ShouldRetry(kind apierr.Kind, attempt int) Decision {
	if !p.Retryable(kind) || attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(attempt)}
}

// NewBackOff implements Policy.
func (p BackendPolicy) NewBackOff() backoff.BackOff {
	return &backendBackOff{policy: p}
}

type backendBackOff struct {
	policy  BackendPolicy
	attempt int
	lastErr error
}

// NextBackOff implements backoff.BackOff.
func (b *backendBackOff) NextBackOff() time.Duration {
	var d Decision
	if b.lastErr == nil {
		// Used without ObserveError, only the schedule applies.
		d = Decision{Retry: b.attempt < b.policy.MaxAttempts, Delay: b.policy.Delay(b.attempt)}
	} else {
		d = b.policy.ShouldRetry(apierr.KindOf(b.lastErr), b.attempt)
	}
	if !d.Retry {
		return backoff.Stop
	}
	if b.policy.HonorRetryAfter {
		if hint, ok := apierr.RetryAfterOf(b.lastErr); ok {
			d.Delay = min(hint, b.policy.MaxDelay)
		}
	}
	b.attempt++
	return d.Delay
}

// Reset implements backoff.BackOff.
func (b *backendBackOff) Reset() {
	b.attempt = 0
	b.lastErr = nil
}

// ObserveError implements ErrorObserver.
func (b *backendBackOff) ObserveError(err error) {
	b.lastErr = err
}
