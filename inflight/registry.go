/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrAlreadySettled is returned by Settle when the call has been settled before.
var ErrAlreadySettled = errors.New("in-flight call is already settled")

// Call is a single in-progress call shared by its owner and all joined callers.
type Call[V any] struct {
	done      chan struct{}
	startedAt time.Time
	waiters   atomic.Int32

	// val and err are written once before done is closed.
	val     V
	err     error
	settled bool
}

// StartedAt returns the time the call was registered.
func (c *Call[V]) StartedAt() time.Time {
	return c.startedAt
}

// Waiters returns the number of callers still attached to the call.
func (c *Call[V]) Waiters() int {
	return int(c.waiters.Load())
}

// Wait blocks until the call is settled or ctx is done.
// A caller whose ctx is done detaches from the call; the call itself is not affected.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	default:
	}
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		c.waiters.Dec()
		var zero V
		return zero, ctx.Err()
	}
}

// Registry keeps at most one in-progress Call per key.
type Registry[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*Call[V]
	now   func() time.Time
}

// RegistryOpts represents options for Registry.
type RegistryOpts struct {
	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return NewRegistryWithOpts[K, V](RegistryOpts{})
}

// NewRegistryWithOpts creates an empty Registry with the provided options.
func NewRegistryWithOpts[K comparable, V any](opts RegistryOpts) *Registry[K, V] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry[K, V]{calls: make(map[K]*Call[V]), now: opts.Clock}
}

// BeginOrJoin returns the in-progress call for key, creating it if there is none.
// owner is true for the caller that created the call; it must eventually call Settle.
func (r *Registry[K, V]) BeginOrJoin(key K) (call *Call[V], owner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.calls[key]; ok {
		c.waiters.Inc()
		return c, false
	}
	c := &Call[V]{done: make(chan struct{}), startedAt: r.now()}
	c.waiters.Store(1)
	r.calls[key] = c
	return c, true
}

// Settle publishes the outcome of call to all its waiters and removes it from the registry.
// The removal happens before waiters are woken up, so a caller arriving afterwards starts a new call.
// Settling the same call twice returns ErrAlreadySettled and leaves the first outcome intact.
func (r *Registry[K, V]) Settle(key K, call *Call[V], val V, err error) error {
	r.mu.Lock()
	if call.settled {
		r.mu.Unlock()
		return ErrAlreadySettled
	}
	call.settled = true
	call.val, call.err = val, err
	if cur, ok := r.calls[key]; ok && cur == call {
		delete(r.calls, key)
	}
	r.mu.Unlock()

	close(call.done)
	return nil
}

// Len returns the number of in-progress calls.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Waiters returns the number of callers attached to the in-progress call for key (0 if there is none).
func (r *Registry[K, V]) Waiters(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[key]; ok {
		return c.Waiters()
	}
	return 0
}
