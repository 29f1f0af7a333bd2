/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package monitor provides the HTTP server of the monitoring page:
// orchestrator statistics, recent rate-limit events, manual cache invalidation,
// health and Prometheus metrics endpoints, and optional pprof handlers.
package monitor
