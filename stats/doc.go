/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package stats records live orchestrator statistics: request counters, a bounded log of
// rate-limit events and a point-in-time snapshot of cache, gate and in-flight usage.
// Recording never blocks callers for longer than a short critical section.
package stats
