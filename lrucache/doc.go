/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a generic in-memory cache with LRU eviction, per-entry expiration,
// predicate-based invalidation, and Prometheus metrics.
package lrucache
