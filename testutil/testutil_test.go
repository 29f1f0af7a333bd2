/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/apierr"
)

func TestRequireErrorIsAny(t *testing.T) {
	err := fmt.Errorf("call: %w", context.DeadlineExceeded)
	RequireErrorIsAny(t, err, []error{context.Canceled, context.DeadlineExceeded})

	require.Equal(t, "\"outer: inner\"\n\t\"inner\"", buildErrorChainString(fmt.Errorf("outer: %w", errors.New("inner"))))
}

func TestRequireNoErrorInChannel(t *testing.T) {
	c := make(chan error, 1)
	RequireNoErrorInChannel(t, c)
	c <- nil
	RequireNoErrorInChannel(t, c)
}

func TestRequireAPIError(t *testing.T) {
	err := fmt.Errorf("list orders: %w", &apierr.Error{Kind: apierr.KindRateLimited, StatusCode: 429, RetryAfter: time.Second})
	apiErr := RequireAPIError(t, err, apierr.KindRateLimited, 429)
	require.Equal(t, time.Second, apiErr.RetryAfter)
}

func TestMetricsHelpers(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "calls_total"}, []string{"kind"})
	counter.WithLabelValues("list").Add(2)
	counter.WithLabelValues("get").Inc()
	RequireSamplesCountInCounter(t, counter, 3)

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "delay_seconds"})
	hist.Observe(1)
	hist.Observe(2)
	RequireSamplesCountInHistogram(t, hist, 2)
}

func TestHTTPHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentTypeAppJSON)
	rec.WriteHeader(http.StatusNotFound)
	_, _ = rec.WriteString(`{"error":{"domain":"monitor","code":"notFound"}}`)
	RequireErrorInRecorder(t, rec, http.StatusNotFound, "monitor", "notFound")

	rec = httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentTypeAppJSON)
	_, _ = rec.WriteString(`{"hits":2}`)
	RequireJSONInRecorder(t, rec, &map[string]int{"hits": 2}, &map[string]int{})
}

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, 50*time.Millisecond))

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}
