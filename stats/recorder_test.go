/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/log/logtest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRecorder(t *testing.T, opts RecorderOpts) (*Recorder, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	rec, err := NewRecorder(opts)
	require.NoError(t, err)
	return rec, clock
}

func TestNewRecorder_Validation(t *testing.T) {
	_, err := NewRecorder(RecorderOpts{Window: -time.Second})
	require.EqualError(t, err, "window should not be negative, got -1s")
	_, err = NewRecorder(RecorderOpts{MaxEvents: -1})
	require.EqualError(t, err, "max events should not be negative, got -1")
}

func TestRecorder_RecentRateLimitEvents(t *testing.T) {
	rec, clock := newTestRecorder(t, RecorderOpts{})

	rec.RecordRateLimit(RateLimitEvent{Attempt: 0, Delay: time.Second, Kind: "list", Resource: "orders"})
	clock.Advance(30 * time.Second)
	rec.RecordRateLimit(RateLimitEvent{Attempt: 1, Delay: 2 * time.Second, Kind: "list", Resource: "orders"})
	clock.Advance(20 * time.Second)
	rec.RecordRateLimit(RateLimitEvent{Attempt: 0, Delay: time.Second, Kind: "get", Resource: "devices"})

	events := rec.RecentRateLimitEvents()
	require.Len(t, events, 3)
	require.Equal(t, "devices", events[0].Resource, "most recent event goes first")
	require.Equal(t, 1, events[1].Attempt)
	require.Equal(t, 0, events[2].Attempt)

	clock.Advance(15 * time.Second) // the first event is now 65s old
	events = rec.RecentRateLimitEvents()
	want := []RateLimitEvent{
		{Timestamp: clock.Now().Add(-15 * time.Second), Attempt: 0, Delay: time.Second, Kind: "get", Resource: "devices"},
		{Timestamp: clock.Now().Add(-35 * time.Second), Attempt: 1, Delay: 2 * time.Second, Kind: "list", Resource: "orders"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, rec.Snapshot().RateLimitEventsLastMinute)
}

func TestRecorder_EventLogIsBounded(t *testing.T) {
	rec, clock := newTestRecorder(t, RecorderOpts{MaxEvents: 3})
	for i := 0; i < 5; i++ {
		rec.RecordRateLimit(RateLimitEvent{Attempt: i})
		clock.Advance(time.Second)
	}
	events := rec.RecentRateLimitEvents()
	require.Len(t, events, 3)
	require.Equal(t, []int{4, 3, 2}, []int{events[0].Attempt, events[1].Attempt, events[2].Attempt})
}

func TestRecorder_Snapshot(t *testing.T) {
	rec, _ := newTestRecorder(t, RecorderOpts{Sources: Sources{
		CacheSize:      func() int { return 12 },
		ActiveRequests: func() int { return 4 },
		QueuedRequests: func() int { return 6 },
	}})

	rec.RecordCacheHit()
	rec.RecordCacheHit()
	rec.RecordCacheMiss()
	rec.RecordCoalesced()
	rec.RecordTransportCall()
	rec.RecordFailure("client")
	rec.RecordFailure("rate_limited")
	rec.RecordFailure("client")

	want := Snapshot{
		CacheSize:         12,
		ActiveRequests:    4,
		QueuedRequests:    6,
		CacheHits:         2,
		CacheMisses:       1,
		CoalescedRequests: 1,
		TransportCalls:    1,
		Failures:          3,
		FailuresByKind:    map[string]int64{"client": 2, "rate_limited": 1},
	}
	if diff := cmp.Diff(want, rec.Snapshot()); diff != "" {
		t.Fatalf("unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestRecorder_PrometheusMetrics(t *testing.T) {
	inFlight := 3
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
		Sources: Sources{InFlightRequests: func() int { return inFlight }},
	})
	reg := prometheus.NewRegistry()
	metrics.MustRegisterWith(reg)

	rec, _ := newTestRecorder(t, RecorderOpts{MetricsCollector: metrics})
	rec.RecordRateLimit(RateLimitEvent{Kind: "list", Resource: "orders", Delay: 2 * time.Second})
	rec.RecordCoalesced()
	rec.RecordTransportCall()
	rec.RecordTransportCall()
	rec.RecordFailure("server")

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitsTotal.WithLabelValues("list", "orders")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.CoalescedTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.TransportCallsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.FailuresTotal.WithLabelValues("server")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.RetryDelaySeconds))

	count, err := testutil.GatherAndCount(reg, "orchestrator_inflight_requests")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type panickingCollector struct{}

func (panickingCollector) IncRateLimits(string, string, time.Duration) { panic("rate limits") }
func (panickingCollector) IncCoalesced() { panic("coalesced") }
func (panickingCollector) IncTransportCalls() { panic("transport calls") }
func (panickingCollector) IncFailures(string) { panic("failures") }

func TestRecorder_CollectorPanicIsContained(t *testing.T) {
	logs := logtest.NewRecorder()
	rec, _ := newTestRecorder(t, RecorderOpts{MetricsCollector: panickingCollector{}, Logger: logs})

	require.NotPanics(t, func() {
		rec.RecordRateLimit(RateLimitEvent{Kind: "list", Resource: "orders", Delay: time.Second})
		rec.RecordCoalesced()
		rec.RecordTransportCall()
		rec.RecordFailure("server")
	})

	snapshot := rec.Snapshot()
	require.Equal(t, 1, snapshot.RateLimitEventsLastMinute)
	require.EqualValues(t, 1, snapshot.CoalescedRequests)
	require.EqualValues(t, 1, snapshot.TransportCalls)
	require.EqualValues(t, 1, snapshot.Failures)

	entries := logs.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "metrics collector panicked"
	})
	require.Len(t, entries, 4)
	metric, ok := entries[0].FindField("metric")
	require.True(t, ok)
	require.Equal(t, "rate_limits", string(metric.Bytes))
}

func TestRecorder_ConcurrentRecording(t *testing.T) {
	rec, _ := newTestRecorder(t, RecorderOpts{MaxEvents: 16})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.RecordRateLimit(RateLimitEvent{Attempt: j})
				rec.RecordTransportCall()
				_ = rec.RecentRateLimitEvents()
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 800, rec.Snapshot().TransportCalls)
	require.Len(t, rec.RecentRateLimitEvents(), 16)
}
