/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers for the backend client.
package netutil

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// NewRoundRobinResolver creates a resolver that sends DNS queries to the given servers ("host:port") in turn.
// Each query connection is dialed with the given timeout.
//
// Example of usage with an HTTP transport:
//
//	resolver := netutil.NewRoundRobinResolver([]string{"10.0.0.2:53", "10.0.0.3:53"}, 2*time.Second)
//	transport := http.DefaultTransport.(*http.Transport).Clone()
//	transport.DialContext = (&net.Dialer{Resolver: resolver}).DialContext
func NewRoundRobinResolver(addrs []string, timeout time.Duration) *net.Resolver {
	if len(addrs) == 0 {
		return net.DefaultResolver
	}
	var idx atomic.Uint32
	addrsLen := uint32(len(addrs)) //nolint:gosec // server count is small
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := addrs[(idx.Add(1)-1)%addrsLen]
			return d.DialContext(ctx, "udp", addr)
		},
	}
}
