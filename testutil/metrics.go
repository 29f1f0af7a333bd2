/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t assert.TestingT, c prometheus.Collector) ([]float64, []uint64, bool) {
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(c)) {
		return nil, nil, false
	}
	families, err := reg.Gather()
	if !assert.NoError(t, err) {
		return nil, nil, false
	}
	var counters []float64
	var samples []uint64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.Counter != nil {
				counters = append(counters, m.GetCounter().GetValue())
			}
			if m.Histogram != nil {
				samples = append(samples, m.GetHistogram().GetSampleCount())
			}
		}
	}
	return counters, samples, true
}

// AssertSamplesCountInHistogram asserts that the histogram (or all series of a histogram vector)
// contains the specified number of samples.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Collector, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	_, samples, ok := gather(t, hist)
	if !ok {
		return false
	}
	var total uint64
	for _, s := range samples {
		total += s
	}
	return assert.Equal(t, wantSamplesCount, int(total))
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fails the test immediately in case of error.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Collector, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		return
	}
	t.FailNow()
}

// AssertSamplesCountInCounter asserts that the counter (or the sum over a counter vector) has the given value.
func AssertSamplesCountInCounter(t assert.TestingT, counter prometheus.Collector, wantCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	counters, _, ok := gather(t, counter)
	if !ok {
		return false
	}
	var total float64
	for _, c := range counters {
		total += c
	}
	return assert.Equal(t, wantCount, int(total))
}

// RequireSamplesCountInCounter calls AssertSamplesCountInCounter and fails the test immediately in case of error.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Collector, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertSamplesCountInCounter(t, counter, wantCount) {
		return
	}
	t.FailNow()
}
