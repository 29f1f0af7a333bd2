/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports recorded values.
type MetricsCollector interface {
	IncRateLimits(kind, resource string, delay time.Duration)
	IncCoalesced()
	IncTransportCalls()
	IncFailures(kind string)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string
	// RetryDelayBuckets are buckets of the retry delay histogram. Powers of two from 1 to 16 seconds if nil.
	RetryDelayBuckets []float64
	// Sources are exported as gauges evaluated at scrape time.
	Sources Sources
}

// PrometheusMetrics represents Prometheus metrics of the orchestrator.
type PrometheusMetrics struct {
	RateLimitsTotal     *prometheus.CounterVec
	RetryDelaySeconds   *prometheus.HistogramVec
	CoalescedTotal      prometheus.Counter
	TransportCallsTotal prometheus.Counter
	FailuresTotal       *prometheus.CounterVec
	gauges              []prometheus.Collector
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.RetryDelayBuckets
	if buckets == nil {
		buckets = prometheus.ExponentialBuckets(1, 2, 5)
	}
	pm := &PrometheusMetrics{
		RateLimitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "orchestrator_rate_limits_total",
			Help:      "Number of rate-limited backend responses.",
		}, []string{"kind", "resource"}),
		RetryDelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "orchestrator_retry_delay_seconds",
			Help:      "Delays applied before retrying rate-limited calls.",
			Buckets:   buckets,
		}, []string{"kind"}),
		CoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "orchestrator_coalesced_requests_total",
			Help:      "Number of calls attached to an identical in-flight call.",
		}),
		TransportCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "orchestrator_transport_calls_total",
			Help:      "Number of physical backend calls.",
		}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "orchestrator_failures_total",
			Help:      "Number of terminal call failures by error kind.",
		}, []string{"kind"}),
	}

	addGauge := func(name, help string, f func() int) {
		if f == nil {
			return
		}
		pm.gauges = append(pm.gauges, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f()) }))
	}
	addGauge("orchestrator_active_requests", "Number of calls holding a gate permit.", opts.Sources.ActiveRequests)
	addGauge("orchestrator_queued_requests", "Number of calls waiting for a gate permit.", opts.Sources.QueuedRequests)
	addGauge("orchestrator_inflight_requests", "Number of distinct in-flight calls.", opts.Sources.InFlightRequests)
	return pm
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return append([]prometheus.Collector{
		pm.RateLimitsTotal, pm.RetryDelaySeconds, pm.CoalescedTotal, pm.TransportCallsTotal, pm.FailuresTotal,
	}, pm.gauges...)
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// MustRegisterWith registers all metrics in reg and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// IncRateLimits implements MetricsCollector.
func (pm *PrometheusMetrics) IncRateLimits(kind, resource string, delay time.Duration) {
	pm.RateLimitsTotal.WithLabelValues(kind, resource).Inc()
	pm.RetryDelaySeconds.WithLabelValues(kind).Observe(delay.Seconds())
}

// IncCoalesced implements MetricsCollector.
func (pm *PrometheusMetrics) IncCoalesced() {
	pm.CoalescedTotal.Inc()
}

// IncTransportCalls implements MetricsCollector.
func (pm *PrometheusMetrics) IncTransportCalls() {
	pm.TransportCallsTotal.Inc()
}

// IncFailures implements MetricsCollector.
func (pm *PrometheusMetrics) IncFailures(kind string) {
	pm.FailuresTotal.WithLabelValues(kind).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncRateLimits(string, string, time.Duration) {}
func (disabledMetrics) IncCoalesced()                               {}
func (disabledMetrics) IncTransportCalls()                          {}
func (disabledMetrics) IncFailures(string)                          {}
