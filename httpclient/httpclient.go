/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/netutil"
)

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of the Headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	return r
}

// Opts provides options for NewWithOpts.
type Opts struct {
	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used if nil,
	// dialing through the configured DNS servers if any.
	Delegate http.RoundTripper

	// Logger is used by the logging round tripper and the backend transport.
	Logger log.FieldLogger

	// LoggerProvider returns a context-specific logger for the logging round tripper.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Collector receives request durations when metrics are enabled in the config.
	Collector MetricsCollector
}

// New creates an HTTP client configured by cfg.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates an HTTP client with a chain of round trippers enabled by cfg:
// request id, rate limiting, metrics and logging (outermost first).
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = newBaseTransport(cfg)
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.Logger = opts.Logger
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, logOpts)
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.Collector)
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts(),
		); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	delegate = NewRequestIDRoundTripper(delegate)

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout.Duration()}, nil
}

func newBaseTransport(cfg *Config) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(cfg.DNSServers) != 0 {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Resolver:  netutil.NewRoundRobinResolver(cfg.DNSServers, DefaultDNSDialTimeout),
		}
		transport.DialContext = dialer.DialContext
	}
	return transport
}

// MustNew creates an HTTP client configured by cfg and panics if any error occurs.
func MustNew(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}
