/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package netutil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRoundRobinResolver(t *testing.T) {
	t.Run("no servers", func(t *testing.T) {
		require.Same(t, net.DefaultResolver, NewRoundRobinResolver(nil, time.Second))
	})

	t.Run("servers are used in turn", func(t *testing.T) {
		addrs := []string{"127.0.0.1:5301", "127.0.0.1:5302", "127.0.0.1:5303"}
		resolver := NewRoundRobinResolver(addrs, time.Second)
		require.True(t, resolver.PreferGo)

		var got []string
		for i := 0; i < 5; i++ {
			conn, err := resolver.Dial(context.Background(), "udp", "8.8.8.8:53")
			require.NoError(t, err)
			got = append(got, conn.RemoteAddr().String())
			require.NoError(t, conn.Close())
		}
		require.Equal(t, []string{addrs[0], addrs[1], addrs[2], addrs[0], addrs[1]}, got)
	})
}
