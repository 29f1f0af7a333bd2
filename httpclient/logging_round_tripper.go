/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-apiorch/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider returns a context-specific logger. It takes precedence over Logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
	// Logger is used when LoggerProvider is nil.
	Logger log.FieldLogger
	// Mode of logging. LoggingModeFailed is used if empty.
	Mode LoggingMode
	// SlowRequestThreshold makes requests lasting longer be logged at warn level in any mode except none.
	// Zero disables slow request detection.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs outgoing requests.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests with the given logger.
func NewLoggingRoundTripper(delegate http.RoundTripper, logger log.FieldLogger) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{Logger: logger})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeFailed
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return rt.Opts.Logger
}

// RoundTrip logs the request once the response (or an error) is received.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}
	logger := rt.getLogger(r.Context())
	if logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	failed := err != nil || resp.StatusCode >= http.StatusBadRequest
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if !failed && !slow && rt.Opts.Mode != LoggingModeAll {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if reqType := GetRequestTypeFromContext(r.Context()); reqType != "" {
		fields = append(fields, log.String("request_type", reqType))
	}
	if reqID := r.Header.Get(HeaderRequestID); reqID != "" {
		fields = append(fields, log.String("request_id", reqID))
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	if slow {
		fields = append(fields, log.Bool("slow", true))
	}

	switch {
	case err != nil:
		logger.Error("client http request failed", append(fields, log.Error(err))...)
	case failed || slow:
		logger.Warn("client http request done", fields...)
	default:
		logger.Info("client http request done", fields...)
	}
	return resp, err
}
