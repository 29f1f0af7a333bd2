/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import "time"

type callOptions struct {
	ttl             time.Duration
	skipCache       bool
	forceInvalidate bool
}

// CallOption customizes a single call.
type CallOption func(*callOptions)

// WithTTL overrides the cache TTL for the result of the call. Non-positive values are ignored.
// When the call is coalesced with an identical in-flight call, the options of the first caller apply.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithSkipCache makes a read call bypass the cache lookup. The fresh result is still cached.
func WithSkipCache() CallOption {
	return func(o *callOptions) {
		o.skipCache = true
	}
}

// WithForceInvalidate drops cached results of the same resource and tenant before the call is executed.
func WithForceInvalidate() CallOption {
	return func(o *callOptions) {
		o.forceInvalidate = true
	}
}
