/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package stats

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-apiorch/log"
)

// Default values of RecorderOpts.
const (
	DefaultWindow    = time.Minute
	DefaultMaxEvents = 1024
)

// RateLimitEvent is a single rate-limited backend response that led to a retry (or gave up retrying).
type RateLimitEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Attempt   int           `json:"attempt"`
	Delay     time.Duration `json:"delay"`
	Kind      string        `json:"kind"`
	Resource  string        `json:"resource"`
}

// Snapshot is a point-in-time view of the orchestrator.
type Snapshot struct {
	CacheSize                 int              `json:"cacheSize"`
	ActiveRequests            int              `json:"activeRequests"`
	QueuedRequests            int              `json:"queuedRequests"`
	InFlightRequests          int              `json:"inFlightRequests"`
	RateLimitEventsLastMinute int              `json:"rateLimitEventsLastMinute"`
	CacheHits                 int64            `json:"cacheHits"`
	CacheMisses               int64            `json:"cacheMisses"`
	CoalescedRequests         int64            `json:"coalescedRequests"`
	TransportCalls            int64            `json:"transportCalls"`
	Failures                  int64            `json:"failures"`
	FailuresByKind            map[string]int64 `json:"failuresByKind,omitempty"`
}

// Sources provide the live values reported in Snapshot. Nil funcs report zero.
type Sources struct {
	CacheSize        func() int
	ActiveRequests   func() int
	QueuedRequests   func() int
	InFlightRequests func() int
}

// RecorderOpts represents options for Recorder.
type RecorderOpts struct {
	// Window limits reported rate-limit events to the recent ones. DefaultWindow if zero.
	Window time.Duration
	// MaxEvents is the capacity of the rate-limit event log. DefaultMaxEvents if zero.
	MaxEvents int
	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time
	// Sources provide live gauges for Snapshot.
	Sources Sources
	// MetricsCollector additionally exports recorded values. Disabled if nil.
	MetricsCollector MetricsCollector
	// Logger reports panics of MetricsCollector. Disabled if nil.
	Logger log.FieldLogger
}

// Recorder accumulates statistics. It is safe for concurrent use.
type Recorder struct {
	window  time.Duration
	now     func() time.Time
	sources Sources
	metrics MetricsCollector
	logger  log.FieldLogger

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	coalesced      atomic.Int64
	transportCalls atomic.Int64
	failures       atomic.Int64

	failuresMu     sync.Mutex
	failuresByKind map[string]int64

	eventsMu sync.Mutex
	events   []RateLimitEvent // ring buffer
	next     int
	count    int
}

// NewRecorder creates a new Recorder.
func NewRecorder(opts RecorderOpts) (*Recorder, error) {
	if opts.Window < 0 {
		return nil, fmt.Errorf("window should not be negative, got %s", opts.Window)
	}
	if opts.MaxEvents < 0 {
		return nil, fmt.Errorf("max events should not be negative, got %d", opts.MaxEvents)
	}
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxEvents == 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &Recorder{
		window:         opts.Window,
		now:            opts.Clock,
		sources:        opts.Sources,
		metrics:        opts.MetricsCollector,
		logger:         opts.Logger,
		failuresByKind: make(map[string]int64),
		events:         make([]RateLimitEvent, opts.MaxEvents),
	}, nil
}

// RecordRateLimit appends ev to the event log, evicting the oldest event when the log is full.
// A zero Timestamp is replaced with the current time.
func (r *Recorder) RecordRateLimit(ev RateLimitEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	r.eventsMu.Lock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
	r.eventsMu.Unlock()

	r.collect("rate_limits", func() { r.metrics.IncRateLimits(ev.Kind, ev.Resource, ev.Delay) })
}

// RecordCacheHit counts a read served from cache.
func (r *Recorder) RecordCacheHit() {
	r.cacheHits.Inc()
}

// RecordCacheMiss counts a read not found in cache.
func (r *Recorder) RecordCacheMiss() {
	r.cacheMisses.Inc()
}

// RecordCoalesced counts a call attached to an already in-flight identical call.
func (r *Recorder) RecordCoalesced() {
	r.coalesced.Inc()
	r.collect("coalesced", r.metrics.IncCoalesced)
}

// RecordTransportCall counts a physical backend call.
func (r *Recorder) RecordTransportCall() {
	r.transportCalls.Inc()
	r.collect("transport_calls", r.metrics.IncTransportCalls)
}

// RecordFailure counts a terminal failure of the given kind.
func (r *Recorder) RecordFailure(kind string) {
	r.failures.Inc()
	r.failuresMu.Lock()
	r.failuresByKind[kind]++
	r.failuresMu.Unlock()
	r.collect("failures", func() { r.metrics.IncFailures(kind) })
}

// RecentRateLimitEvents returns events younger than the window, most recent first.
func (r *Recorder) RecentRateLimitEvents() []RateLimitEvent {
	cutoff := r.now().Add(-r.window)

	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	result := make([]RateLimitEvent, 0, r.count)
	for i := 1; i <= r.count; i++ {
		ev := r.events[(r.next-i+len(r.events))%len(r.events)]
		if !ev.Timestamp.After(cutoff) {
			continue
		}
		result = append(result, ev)
	}
	return result
}

// Snapshot returns the current statistics.
func (r *Recorder) Snapshot() Snapshot {
	r.failuresMu.Lock()
	byKind := make(map[string]int64, len(r.failuresByKind))
	for k, v := range r.failuresByKind {
		byKind[k] = v
	}
	r.failuresMu.Unlock()

	return Snapshot{
		CacheSize:                 callSource(r.sources.CacheSize),
		ActiveRequests:            callSource(r.sources.ActiveRequests),
		QueuedRequests:            callSource(r.sources.QueuedRequests),
		InFlightRequests:          callSource(r.sources.InFlightRequests),
		RateLimitEventsLastMinute: len(r.RecentRateLimitEvents()),
		CacheHits:                 r.cacheHits.Load(),
		CacheMisses:               r.cacheMisses.Load(),
		CoalescedRequests:         r.coalesced.Load(),
		TransportCalls:            r.transportCalls.Load(),
		Failures:                  r.failures.Load(),
		FailuresByKind:            byKind,
	}
}

// collect runs a MetricsCollector call; a panic in it is logged and does not reach the recording caller.
func (r *Recorder) collect(metric string, f func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("metrics collector panicked", log.String("metric", metric), log.Any("panic", p))
		}
	}()
	f()
}

func callSource(f func() int) int {
	if f == nil {
		return 0
	}
	return f()
}
