/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache is an LRU cache with optional per-entry expiration and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lruList *list.List
	cache   map[K]*list.Element // value is an lruList element holding *cacheEntry

	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is used by Add. Zero means entries never expire.
	// Expired entries are never returned; they are physically removed on access,
	// by RemoveIf or by DeleteExpired.
	DefaultTTL time.Duration

	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector may be nil, in this case metrics are disabled.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		defaultTTL:       opts.DefaultTTL,
		now:              opts.Clock,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// DefaultTTL returns the TTL used by Add.
func (c *LRUCache[K, V]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns a live (not expired) value by key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		c.removeElement(elem)
		c.metricsCollector.AddEvictions(EvictionReasonExpired, 1)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true
}

// Add stores value under key with the default TTL, overwriting any previous entry.
// If the cache is full, the least recently used entry is evicted.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL stores value under key with the given TTL (zero means no expiration),
// overwriting any previous entry.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	entry := &cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt}

	if elem, ok := c.cache[key]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}

	c.cache[key] = c.lruList.PushFront(entry)
	if len(c.cache) > c.maxEntries {
		if back := c.lruList.Back(); back != nil {
			c.removeElement(back)
			c.metricsCollector.AddEvictions(EvictionReasonCapacity, 1)
		}
	}
	c.metricsCollector.SetAmount(len(c.cache))
}

// RemoveIf deletes every entry for which pred returns true and returns the number of deleted entries.
// Expired entries are deleted as well regardless of pred. pred is called under the cache lock
// and must not call back into the cache.
func (c *LRUCache[K, V]) RemoveIf(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed, expired := 0, 0
	for elem := c.lruList.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry[K, V])
		switch {
		case entry.expired(now):
			c.removeElement(elem)
			expired++
		case pred(entry.key, entry.value):
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	if removed > 0 {
		c.metricsCollector.AddEvictions(EvictionReasonInvalidated, removed)
	}
	if expired > 0 {
		c.metricsCollector.AddEvictions(EvictionReasonExpired, expired)
	}
	if removed+expired > 0 {
		c.metricsCollector.SetAmount(len(c.cache))
	}
	return removed
}

// Purge clears the cache. Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
	c.metricsCollector.SetAmount(0)
}

// Len returns the number of stored entries, including expired ones not swept yet.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// DeleteExpired removes all expired entries and returns their number.
func (c *LRUCache[K, V]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, elem := range c.cache {
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem)
			n++
		}
	}
	if n > 0 {
		c.metricsCollector.AddEvictions(EvictionReasonExpired, n)
		c.metricsCollector.SetAmount(len(c.cache))
	}
	return n
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[K, V]).key)
}
