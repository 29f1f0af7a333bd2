/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package orchestrator mediates every backend call of an application.
//
// A call goes through the following stages:
//   - read calls (get, list, filter) are served from the response cache when possible;
//   - identical concurrent calls are coalesced into a single backend call;
//   - backend calls are admitted through a FIFO concurrency gate (4 at a time by default);
//   - rate-limited calls are retried with exponential backoff (1s, 2s, 4s, 8s, 16s),
//     releasing the gate permit while sleeping;
//   - successful mutations (create, update, delete) invalidate cached results of the affected resource.
//
// Live statistics and the recent rate-limit events are available through Stats and RecentRateLimitEvents.
package orchestrator
