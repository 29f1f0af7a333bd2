/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	fc.mu.Unlock()
}

func newTestCache(t *testing.T, maxEntries int, ttl time.Duration) (*LRUCache[string, int], *PrometheusMetrics, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	metrics := NewPrometheusMetrics()
	cache, err := NewWithOpts[string, int](maxEntries, metrics, Options{DefaultTTL: ttl, Clock: clock.Now})
	require.NoError(t, err)
	return cache, metrics, clock
}

func TestNewWithOpts_Validation(t *testing.T) {
	_, err := New[string, int](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	_, err = NewWithOpts[string, int](10, nil, Options{DefaultTTL: -time.Second})
	require.EqualError(t, err, "defaultTTL must be greater or equal to 0 (no expiration)")
}

func TestLRUCache_GetAdd(t *testing.T) {
	cache, metrics, _ := newTestCache(t, 10, time.Minute)

	_, found := cache.Get("list:orders")
	require.False(t, found)

	cache.Add("list:orders", 50)
	val, found := cache.Get("list:orders")
	require.True(t, found)
	require.Equal(t, 50, val)

	cache.Add("list:orders", 51)
	val, found = cache.Get("list:orders")
	require.True(t, found)
	require.Equal(t, 51, val)
	require.Equal(t, 1, cache.Len())

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.HitsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.MissesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EntriesAmount))
}

func TestLRUCache_Expiration(t *testing.T) {
	cache, metrics, clock := newTestCache(t, 10, time.Minute)

	cache.Add("get:orders:1", 1)
	cache.AddWithTTL("get:orders:2", 2, 5*time.Minute)
	cache.AddWithTTL("get:orders:3", 3, 0)

	clock.Advance(time.Minute - time.Nanosecond)
	_, found := cache.Get("get:orders:1")
	require.True(t, found)

	clock.Advance(time.Nanosecond)
	_, found = cache.Get("get:orders:1")
	require.False(t, found, "entry must be absent exactly at expiration time")
	require.Equal(t, 2, cache.Len())

	clock.Advance(10 * time.Minute)
	require.Equal(t, 1, cache.DeleteExpired())
	val, found := cache.Get("get:orders:3")
	require.True(t, found)
	require.Equal(t, 3, val)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues(string(EvictionReasonExpired))))
}

func TestLRUCache_CapacityEviction(t *testing.T) {
	cache, metrics, _ := newTestCache(t, 2, 0)

	cache.Add("a", 1)
	cache.Add("b", 2)
	_, _ = cache.Get("a") // "b" becomes the least recently used
	cache.Add("c", 3)

	_, found := cache.Get("b")
	require.False(t, found)
	_, found = cache.Get("a")
	require.True(t, found)
	_, found = cache.Get("c")
	require.True(t, found)

	require.Equal(t, 2, cache.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues(string(EvictionReasonCapacity))))
}

func TestLRUCache_RemoveIf(t *testing.T) {
	cache, metrics, clock := newTestCache(t, 10, time.Minute)

	cache.Add("list:orders:t1", 1)
	cache.Add("get:orders:t1", 2)
	cache.Add("list:orders:t2", 3)
	cache.Add("list:devices:t1", 4)
	cache.AddWithTTL("list:alerts:t1", 5, time.Second)
	clock.Advance(2 * time.Second)

	removed := cache.RemoveIf(func(key string, _ int) bool {
		return strings.Contains(key, ":orders:t1")
	})
	require.Equal(t, 2, removed)
	require.Equal(t, 2, cache.Len())

	_, found := cache.Get("list:orders:t2")
	require.True(t, found)
	_, found = cache.Get("list:devices:t1")
	require.True(t, found)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues(string(EvictionReasonInvalidated))))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues(string(EvictionReasonExpired))))
}

func TestLRUCache_Purge(t *testing.T) {
	cache, metrics, _ := newTestCache(t, 10, 0)
	cache.Add("a", 1)
	cache.Add("b", 2)
	cache.Purge()
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.EntriesAmount))
	_, found := cache.Get("a")
	require.False(t, found)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache, err := New[int, int](100, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cache.Add(base*1000+j, j)
				_, _ = cache.Get(base*1000 + j - 1)
				if j%100 == 0 {
					cache.RemoveIf(func(k, _ int) bool { return k%2 == 0 })
				}
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, cache.Len(), 100)
}
