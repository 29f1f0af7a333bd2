/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package monitor

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/restapi"
	"github.com/acronis/go-apiorch/stats"
)

// ErrorDomain is the domain of error responses of the monitoring server.
const ErrorDomain = "ApiOrchestratorMonitor"

const (
	pathMetrics = "/metrics"
	pathHealth  = "/healthz"
)

// Backend is the part of the orchestrator exposed by the monitoring server.
type Backend interface {
	Stats() stats.Snapshot
	RecentRateLimitEvents() []stats.RateLimitEvent
	PurgeCache()
	Invalidate(resource, tenant string) int
}

// RouterOpts represents options for NewRouter.
type RouterOpts struct {
	// Gatherer serves /metrics. prometheus.DefaultGatherer is used if nil.
	Gatherer prometheus.Gatherer
	// Metrics observes durations of served requests. Nothing is observed if nil.
	Metrics *HTTPRequestMetrics
	// MaxRequestBodySize limits request bodies. DefaultMaxRequestBodySize is used if zero.
	MaxRequestBodySize uint64
	// ProfilingEnabled mounts pprof handlers under /debug.
	ProfilingEnabled bool
}

// NewRouter creates the router of the monitoring server:
//
//	GET  /stats              orchestrator statistics snapshot
//	GET  /rate-limit-events  rate-limit events of the last stats window, most recent first
//	POST /cache/purge        drop every cached response
//	POST /cache/invalidate   drop cached responses of {"resource": ..., "tenant": ...}
//	GET  /healthz            liveness probe
//	GET  /metrics            Prometheus metrics
func NewRouter(backend Backend, logger log.FieldLogger, opts RouterOpts) chi.Router {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxRequestBodySize == 0 {
		opts.MaxRequestBodySize = uint64(DefaultMaxRequestBodySize)
	}

	router := chi.NewRouter()
	router.Use(requestID, logging(logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.middleware)
	}
	router.Use(recovery(ErrorDomain))

	h := &handlers{backend: backend, maxBodySize: opts.MaxRequestBodySize}
	router.NotFound(h.notFound)
	router.MethodNotAllowed(h.methodNotAllowed)

	router.Get("/stats", h.getStats)
	router.Get("/rate-limit-events", h.getRateLimitEvents)
	router.Post("/cache/purge", h.purgeCache)
	router.Post("/cache/invalidate", h.invalidateCache)
	router.Get(pathHealth, h.health)
	router.Method(http.MethodGet, pathMetrics, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	if opts.ProfilingEnabled {
		router.Mount("/debug", chimw.Profiler())
	}
	return router
}

type handlers struct {
	backend     Backend
	maxBodySize uint64
}

// RateLimitEventView is the JSON representation of a rate-limit event.
type RateLimitEventView struct {
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	Delay     string    `json:"delay"`
	DelayMs   int64     `json:"delayMs"`
	Kind      string    `json:"kind"`
	Resource  string    `json:"resource"`
}

// RateLimitEventsResponse is the body of GET /rate-limit-events.
type RateLimitEventsResponse struct {
	Events []RateLimitEventView `json:"events"`
}

// InvalidateRequest is the body of POST /cache/invalidate.
type InvalidateRequest struct {
	Resource string `json:"resource"`
	Tenant   string `json:"tenant"`
}

// InvalidateResponse is the body of a successful POST /cache/invalidate.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

func (h *handlers) getStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.backend.Stats(), GetLoggerFromContext(r.Context()))
}

func (h *handlers) getRateLimitEvents(rw http.ResponseWriter, r *http.Request) {
	events := h.backend.RecentRateLimitEvents()
	resp := RateLimitEventsResponse{Events: make([]RateLimitEventView, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, RateLimitEventView{
			Timestamp: e.Timestamp,
			Attempt:   e.Attempt,
			Delay:     e.Delay.String(),
			DelayMs:   e.Delay.Milliseconds(),
			Kind:      e.Kind,
			Resource:  e.Resource,
		})
	}
	restapi.RespondJSON(rw, resp, GetLoggerFromContext(r.Context()))
}

func (h *handlers) purgeCache(rw http.ResponseWriter, r *http.Request) {
	h.backend.PurgeCache()
	if logger := GetLoggerFromContext(r.Context()); logger != nil {
		logger.Info("cache purged via monitoring endpoint")
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *handlers) invalidateCache(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())
	restapi.SetRequestMaxBodySize(rw, r, h.maxBodySize)
	var req InvalidateRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if req.Resource == "" {
		restapi.RespondMalformedRequestError(rw, ErrorDomain, &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusBadRequest, Message: "Field \"resource\" is required.",
		}, logger)
		return
	}
	removed := h.backend.Invalidate(req.Resource, req.Tenant)
	if logger != nil {
		logger.Info("cache invalidated via monitoring endpoint",
			log.String("resource", req.Resource), log.String("tenant", req.Tenant), log.Int("removed", removed))
	}
	restapi.RespondJSON(rw, InvalidateResponse{Removed: removed}, logger)
}

func (h *handlers) health(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, map[string]string{"status": "ok"}, GetLoggerFromContext(r.Context()))
}

func (h *handlers) notFound(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondError(rw, http.StatusNotFound,
		restapi.NewError(ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), GetLoggerFromContext(r.Context()))
}

func (h *handlers) methodNotAllowed(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondError(rw, http.StatusMethodNotAllowed,
		restapi.NewError(ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed),
		GetLoggerFromContext(r.Context()))
}
