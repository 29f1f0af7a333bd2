/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import "context"

//go:generate mockgen -source=transport.go -destination=mocks/transport.go -package=mocks

// Transport performs a single physical backend call.
// Failures should be reported as *Error so that they can be classified and retried.
type Transport interface {
	Execute(ctx context.Context, req Request) (any, error)
}

// TransportFunc is an adapter to allow the use of ordinary functions as Transport.
type TransportFunc func(ctx context.Context, req Request) (any, error)

// Execute implements Transport.
func (f TransportFunc) Execute(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}
