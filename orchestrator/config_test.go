/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/config"
	"github.com/acronis/go-apiorch/retry"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfig("")
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(t, "")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, retry.NewDefaultBackendPolicy(), cfg.RetryPolicy())
}

func TestConfigSet(t *testing.T) {
	cfg, err := loadConfig(t, `
orchestrator:
  gate:
    maxConcurrent: 8
    strict: true
  cache:
    ttl: 30s
    maxEntries: 500
    cleanupInterval: 1m
  retry:
    maxAttempts: 3
    baseDelay: 500ms
    maxDelay: 4s
    retryTransient: true
    honorRetryAfter: true
  stats:
    window: 2m
    maxEvents: 64
  tenantParam: customerId
  coalesceMutations: true
`)
	require.NoError(t, err)
	require.Equal(t, GateConfig{MaxConcurrent: 8, Strict: true}, cfg.Gate)
	require.Equal(t, CacheConfig{
		TTL:             config.TimeDuration(30 * time.Second),
		MaxEntries:      500,
		CleanupInterval: config.TimeDuration(time.Minute),
	}, cfg.Cache)
	require.Equal(t, StatsConfig{Window: config.TimeDuration(2 * time.Minute), MaxEvents: 64}, cfg.Stats)
	require.Equal(t, "customerId", cfg.TenantParam)
	require.True(t, cfg.CoalesceMutations)
	require.Equal(t, retry.BackendPolicy{
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        4 * time.Second,
		MaxAttempts:     3,
		RetryTransient:  true,
		HonorRetryAfter: true,
	}, cfg.RetryPolicy())
}

func TestConfigKeyPrefix(t *testing.T) {
	cfg := NewConfig("backendCalls")
	err := config.NewDefaultLoader("").LoadFromReader(
		bytes.NewBufferString("backendCalls:\n  gate:\n    maxConcurrent: 2\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Gate.MaxConcurrent)
	require.Equal(t, DefaultCacheTTL, cfg.Cache.TTL.Duration())
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{
			name:   "zero concurrency",
			data:   "orchestrator:\n  gate:\n    maxConcurrent: 0\n",
			errMsg: "orchestrator.gate.maxConcurrent: must be positive",
		},
		{
			name:   "zero ttl",
			data:   "orchestrator:\n  cache:\n    ttl: 0s\n",
			errMsg: "orchestrator.cache.ttl: must be positive",
		},
		{
			name:   "zero cache size",
			data:   "orchestrator:\n  cache:\n    maxEntries: 0\n",
			errMsg: "orchestrator.cache.maxEntries: must be positive",
		},
		{
			name:   "negative max attempts",
			data:   "orchestrator:\n  retry:\n    maxAttempts: -1\n",
			errMsg: "orchestrator.retry.maxAttempts: must not be negative",
		},
		{
			name:   "max delay below base delay",
			data:   "orchestrator:\n  retry:\n    baseDelay: 2s\n    maxDelay: 1s\n",
			errMsg: "orchestrator.retry.maxDelay: must not be less than retry.baseDelay",
		},
		{
			name:   "zero stats window",
			data:   "orchestrator:\n  stats:\n    window: 0s\n",
			errMsg: "orchestrator.stats.window: must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.EqualError(t, err, tt.errMsg)
		})
	}
}
