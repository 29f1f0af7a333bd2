/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/config"
	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/log/logtest"
	"github.com/acronis/go-apiorch/testutil"
)

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func doGet(t *testing.T, client *http.Client, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestLoggingRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			rw.WriteHeader(http.StatusTeapot)
			return
		}
		if r.URL.Path == "/slow" {
			time.Sleep(30 * time.Millisecond)
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		mode      LoggingMode
		threshold time.Duration
		path      string
		wantMsg   string
		wantLevel log.Level
	}{
		{name: "failed mode skips success", mode: LoggingModeFailed, path: "/ok"},
		{name: "failed mode logs 4xx", mode: LoggingModeFailed, path: "/fail",
			wantMsg: "client http request done", wantLevel: log.LevelWarn},
		{name: "all mode logs success", mode: LoggingModeAll, path: "/ok",
			wantMsg: "client http request done", wantLevel: log.LevelInfo},
		{name: "none mode", mode: LoggingModeNone, path: "/fail"},
		{name: "slow request", mode: LoggingModeFailed, threshold: 10 * time.Millisecond, path: "/slow",
			wantMsg: "client http request done", wantLevel: log.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := logtest.NewRecorder()
			client := &http.Client{Transport: NewLoggingRoundTripperWithOpts(http.DefaultTransport, LoggingRoundTripperOpts{
				Logger: logs, Mode: tt.mode, SlowRequestThreshold: tt.threshold,
			})}
			doGet(t, client, NewContextWithRequestType(context.Background(), "list orders"), srv.URL+tt.path)
			if tt.wantMsg == "" {
				require.Empty(t, logs.Entries())
				return
			}
			require.Len(t, logs.Entries(), 1)
			entry := logs.Entries()[0]
			require.Equal(t, tt.wantMsg, entry.Text)
			require.Equal(t, tt.wantLevel, entry.Level)
			field, found := entry.FindField("request_type")
			require.True(t, found)
			require.Equal(t, "list orders", string(field.Bytes))
		})
	}

	t.Run("transport error", func(t *testing.T) {
		logs := logtest.NewRecorder()
		failing := roundTripperFunc(func(r *http.Request) (*http.Response, error) { return nil, context.DeadlineExceeded })
		rt := NewLoggingRoundTripper(failing, logs)
		req := httptest.NewRequest(http.MethodGet, "http://backend/orders", nil)
		_, err := rt.RoundTrip(req)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		entry, found := logs.FindEntry("client http request failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})
}

func TestMetricsRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	collector := NewPrometheusMetricsCollector("")
	client := &http.Client{Transport: NewMetricsRoundTripper(http.DefaultTransport, collector)}
	doGet(t, client, NewContextWithRequestType(context.Background(), "get orders"), srv.URL)
	doGet(t, client, context.Background(), srv.URL)

	testutil.RequireSamplesCountInHistogram(t, collector.Durations.WithLabelValues("get orders", "GET", "200").(prometheus.Histogram), 1)
	testutil.RequireSamplesCountInHistogram(t, collector.Durations.WithLabelValues(DefaultRequestType, "GET", "200").(prometheus.Histogram), 1)
}

func TestRequestIDRoundTripper(t *testing.T) {
	var got []string
	rt := &RequestIDRoundTripper{
		Delegate: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			got = append(got, r.Header.Get(HeaderRequestID))
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		NewID: func() string { return "generated" },
	}

	req := httptest.NewRequest(http.MethodGet, "http://backend/orders", nil)
	_, _ = rt.RoundTrip(req)
	require.Empty(t, req.Header.Get(HeaderRequestID), "original request must not be modified")

	_, _ = rt.RoundTrip(req.WithContext(NewContextWithRequestID(req.Context(), "from-ctx")))

	req.Header.Set(HeaderRequestID, "explicit")
	_, _ = rt.RoundTrip(req)

	require.Equal(t, []string{"generated", "from-ctx", "explicit"}, got)

	_, _ = NewRequestIDRoundTripper(rt.Delegate).RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend/orders", nil))
	require.Len(t, got, 4)
	require.Len(t, got[3], 20)
}

func TestRateLimitingRoundTripper(t *testing.T) {
	ok := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	_, err := NewRateLimitingRoundTripperWithOpts(ok, 10, RateLimitingRoundTripperOpts{Burst: -1})
	require.EqualError(t, err, "burst must not be negative")

	rt, err := NewRateLimitingRoundTripperWithOpts(ok, 1, RateLimitingRoundTripperOpts{Burst: 2, WaitTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend/orders", nil))
		require.NoError(t, err)
	}
	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend/orders", nil))
	var waitErr *RateLimitingWaitError
	require.ErrorAs(t, err, &waitErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend/orders", nil).WithContext(ctx))
	require.ErrorIs(t, err, context.Canceled)

	defaults, err := NewRateLimitingRoundTripper(ok, 5)
	require.NoError(t, err)
	require.Equal(t, DefaultRateLimitsBurst, defaults.Burst)
	require.Equal(t, DefaultRateLimitsWaitTimeout, defaults.WaitTimeout)
}

func TestNewWithOpts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls++
		require.NotEmpty(t, r.Header.Get(HeaderRequestID))
		rw.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logs := logtest.NewRecorder()
	collector := NewPrometheusMetricsCollector("")
	cfg := NewDefaultConfig(srv.URL)
	cfg.Timeout = config.TimeDuration(time.Second)
	cfg.Logger.Enabled = true
	cfg.Metrics.Enabled = true
	client, err := NewWithOpts(cfg, Opts{Logger: logs, Collector: collector})
	require.NoError(t, err)
	require.Equal(t, time.Second, client.Timeout)

	doGet(t, client, context.Background(), srv.URL)
	require.Equal(t, 1, calls)
	_, found := logs.FindEntry("client http request done")
	require.True(t, found)
	testutil.RequireSamplesCountInHistogram(t, collector.Durations, 1)

	require.NotNil(t, MustNew(NewDefaultConfig(srv.URL)))
}

func TestNewBaseTransport(t *testing.T) {
	plain := newBaseTransport(NewDefaultConfig("http://backend.local"))
	require.NotSame(t, http.DefaultTransport, plain)

	cfg := NewDefaultConfig("http://backend.local")
	cfg.DNSServers = []string{"127.0.0.1:5353"}
	require.NotNil(t, newBaseTransport(cfg).DialContext)
}
