/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/apierr"
)

// instantTimer fires immediately and remembers requested durations.
type instantTimer struct {
	c         chan time.Time
	durations []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.durations = append(t.durations, d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestBackendPolicy_ShouldRetry(t *testing.T) {
	p := NewDefaultBackendPolicy()

	var delays []time.Duration
	for attempt := 0; ; attempt++ {
		d := p.ShouldRetry(apierr.KindRateLimited, attempt)
		if !d.Retry {
			require.Equal(t, DefaultMaxAttempts, attempt)
			break
		}
		delays = append(delays, d.Delay)
	}
	require.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, delays)

	require.False(t, p.ShouldRetry(apierr.KindClient, 0).Retry)
	require.False(t, p.ShouldRetry(apierr.KindServer, 0).Retry)
	require.False(t, p.ShouldRetry(apierr.KindFailed, 0).Retry)
	require.False(t, p.ShouldRetry(apierr.KindTransientNetwork, 0).Retry)

	p.RetryTransient = true
	require.Equal(t, Decision{Retry: true, Delay: time.Second}, p.ShouldRetry(apierr.KindTransientNetwork, 0))
}

func TestBackendPolicy_DelayIsCapped(t *testing.T) {
	p := NewDefaultBackendPolicy()
	require.Equal(t, 16*time.Second, p.Delay(5))
	require.Equal(t, 16*time.Second, p.Delay(6))
	require.Equal(t, 16*time.Second, p.Delay(100))
	require.Equal(t, time.Second, p.Delay(-1))
}

func TestBackendPolicy_Validate(t *testing.T) {
	require.NoError(t, NewDefaultBackendPolicy().Validate())
	require.EqualError(t, BackendPolicy{MaxDelay: time.Second}.Validate(), "base delay should be positive, got 0s")
	require.EqualError(t, BackendPolicy{BaseDelay: 2 * time.Second, MaxDelay: time.Second}.Validate(),
		"max delay (1s) should not be less than base delay (2s)")
	require.EqualError(t, BackendPolicy{BaseDelay: time.Second, MaxDelay: time.Second, MaxAttempts: -1}.Validate(),
		"max attempts should not be negative, got -1")
}

func TestDoWithRetry_RateLimitedThenSuccess(t *testing.T) {
	p := NewDefaultBackendPolicy()
	timer := newInstantTimer()

	calls := 0
	var notified []time.Duration
	err := DoWithRetryTimer(context.Background(), p, p.IsRetryable, func(_ error, d time.Duration) {
		notified = append(notified, d)
	}, timer, func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return &apierr.Error{Kind: apierr.KindRateLimited, StatusCode: 429}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, timer.durations)
	require.Equal(t, timer.durations, notified)
}

func TestDoWithRetry_Exhausted(t *testing.T) {
	p := BackendPolicy{BaseDelay: time.Second, MaxDelay: 16 * time.Second, MaxAttempts: 2}
	timer := newInstantTimer()

	calls := 0
	err := DoWithRetryTimer(context.Background(), p, p.IsRetryable, nil, timer, func(ctx context.Context) error {
		calls++
		return &apierr.Error{Kind: apierr.KindRateLimited, Attempts: calls}
	})
	require.Equal(t, apierr.KindRateLimited, apierr.KindOf(err))
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.durations)
}

func TestDoWithRetry_NonRetryableIsPermanent(t *testing.T) {
	p := NewDefaultBackendPolicy()
	cause := errors.New("forbidden")

	calls := 0
	err := DoWithRetryTimer(context.Background(), p, p.IsRetryable, nil, newInstantTimer(), func(ctx context.Context) error {
		calls++
		return apierr.New(apierr.KindClient, cause)
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, calls)
}

func TestDoWithRetry_HonorRetryAfter(t *testing.T) {
	p := NewDefaultBackendPolicy()
	p.HonorRetryAfter = true
	timer := newInstantTimer()

	calls := 0
	err := DoWithRetryTimer(context.Background(), p, p.IsRetryable, nil, timer, func(ctx context.Context) error {
		calls++
		switch calls {
		case 1:
			return &apierr.Error{Kind: apierr.KindRateLimited, RetryAfter: 3 * time.Second}
		case 2:
			return &apierr.Error{Kind: apierr.KindRateLimited, RetryAfter: time.Minute}
		case 3:
			return &apierr.Error{Kind: apierr.KindRateLimited}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{3 * time.Second, 16 * time.Second, 4 * time.Second}, timer.durations)
}

func TestDoWithRetry_ContextCancelledDuringSleep(t *testing.T) {
	p := BackendPolicy{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 3}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := DoWithRetry(ctx, p, p.IsRetryable, nil, func(ctx context.Context) error {
		calls++
		return apierr.New(apierr.KindRateLimited, nil)
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}

func TestBackendPolicy_NewBackOffWithoutObserver(t *testing.T) {
	b := BackendPolicy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, MaxAttempts: 3}.NewBackOff()
	require.Equal(t, time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, backoff.Stop, b.NextBackOff())
	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())
}
