/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package monitor

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/config"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfig("")
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	cfg, err := loadConfig(t, "")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg, err = loadConfig(t, "monitor:\n  address: 127.0.0.1:9000\n  shutdownTimeout: 10s\n  maxRequestBodySize: 1M\n  profilingEnabled: true\n")
	require.NoError(t, err)
	require.Equal(t, &Config{
		Address:            "127.0.0.1:9000",
		ShutdownTimeout:    config.TimeDuration(10 * time.Second),
		MaxRequestBodySize: 1024 * 1024,
		ProfilingEnabled:   true,
	}, cfg)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{name: "empty address", data: "monitor:\n  address: \"\"\n", errMsg: "monitor.address: must not be empty"},
		{name: "zero shutdown timeout", data: "monitor:\n  shutdownTimeout: 0s\n", errMsg: "monitor.shutdownTimeout: must be positive"},
		{name: "zero body size", data: "monitor:\n  maxRequestBodySize: 0\n", errMsg: "monitor.maxRequestBodySize: must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}
