/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package monitor

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/restapi"
)

// HeaderRequestID is the header carrying the request ID.
const HeaderRequestID = "X-Request-ID"

// recoveryStackSize limits the part of the stack logged on panic.
const recoveryStackSize = 8192

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyLogger
)

// GetRequestIDFromContext extracts the request ID put by the request ID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

// GetLoggerFromContext extracts the request-scoped logger put by the logging middleware.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	if l, ok := ctx.Value(ctxKeyLogger).(log.FieldLogger); ok {
		return l
	}
	return nil
}

// requestID reads X-Request-ID header or generates a new ID, puts it into the context and returns it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = xid.New().String()
		}
		rw.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// logging puts a logger with the request ID into the context and logs every served request.
// Requests to system endpoints (metrics, health) are logged at debug level.
func logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(log.String("request_id", GetRequestIDFromContext(r.Context())))
			wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)

			next.ServeHTTP(wrw, r.WithContext(context.WithValue(r.Context(), ctxKeyLogger, reqLogger)))

			status := wrw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []log.Field{
				log.String("method", r.Method),
				log.String("uri", r.RequestURI),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
				log.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if isSystemEndpoint(r.URL.Path) {
				reqLogger.Debug("response completed", fields...)
				return
			}
			reqLogger.Info("response completed", fields...)
		})
	}
}

// recovery recovers from panics in handlers, logs them and responds with 500 internal error.
func recovery(errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				logger := GetLoggerFromContext(r.Context())
				if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					if logger != nil {
						logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
					}
					panic(p)
				}
				if logger != nil {
					stack := make([]byte, recoveryStackSize)
					stack = stack[:runtime.Stack(stack, false)]
					logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", stack))
				}
				restapi.RespondInternalError(rw, errDomain, logger)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// HTTPRequestMetrics represents Prometheus metrics of requests served by the monitoring server.
type HTTPRequestMetrics struct {
	Durations *prometheus.HistogramVec
}

// NewHTTPRequestMetrics creates HTTPRequestMetrics.
func NewHTTPRequestMetrics(namespace string) *HTTPRequestMetrics {
	return &HTTPRequestMetrics{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_http_request_duration_seconds",
			Help:      "A histogram of the monitoring server request durations.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route_pattern", "status_code"}),
	}
}

// MustRegister registers the metrics in the default Prometheus registry.
func (m *HTTPRequestMetrics) MustRegister() {
	prometheus.MustRegister(m.Durations)
}

// Unregister cancels registration of the metrics.
func (m *HTTPRequestMetrics) Unregister() {
	prometheus.Unregister(m.Durations)
}

// middleware observes request durations labeled with the chi route pattern. System endpoints are skipped.
func (m *HTTPRequestMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if isSystemEndpoint(r.URL.Path) {
			next.ServeHTTP(rw, r)
			return
		}
		start := time.Now()
		wrw, ok := rw.(chimw.WrapResponseWriter)
		if !ok {
			wrw = chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
		}
		next.ServeHTTP(wrw, r)

		routePattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		status := wrw.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Durations.WithLabelValues(r.Method, routePattern, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func isSystemEndpoint(path string) bool {
	return path == pathMetrics || path == pathHealth
}
