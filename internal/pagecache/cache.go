// Package pagecache caches pages of paginated query results keyed by their
// query parameters, tracks freshness, evicts by age and recency, and plans
// which neighbouring pages are worth fetching next. It performs no I/O.
package pagecache

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Cache stores pages of T keyed by their query parameters.
//
// A Cache is meant to be owned by one query scope (one list or view) and
// cleared when that owner goes away. All methods are safe for concurrent use;
// a single mutex serializes them, including Get, which updates recency and
// staleness.
type Cache[T any] struct {
	mu sync.Mutex

	policy   EvictionPolicy
	strategy PrefetchStrategy
	clock    clockwork.Clock
	logger   *zap.Logger

	entries map[string]*Entry[T]
	access  *accessTracker
	loading map[string]struct{}
	queue   *prefetchQueue

	hits      int64
	misses    int64
	evictions int64
	purged    int64
}

// New creates a cache with the given eviction policy and prefetch strategy.
// Zero policy fields fall back to the package defaults.
func New[T any](policy EvictionPolicy, strategy PrefetchStrategy, opts ...Option) *Cache[T] {
	o := buildOptions(opts)
	c := &Cache[T]{
		policy:   policy.withDefaults(),
		strategy: strategy.withDefaults(),
		clock:    o.clock,
		logger:   o.logger,
		entries:  make(map[string]*Entry[T]),
		access:   newAccessTracker(),
		loading:  make(map[string]struct{}),
		queue:    newPrefetchQueue(),
	}
	if c.strategy.BandwidthAware {
		c.logger.Debug("bandwidth-aware prefetch requested; candidates are planned without bandwidth input")
	}
	return c
}

// Policy returns the effective eviction policy.
func (c *Cache[T]) Policy() EvictionPolicy {
	return c.policy
}

// Strategy returns the effective prefetch strategy.
func (c *Cache[T]) Strategy() PrefetchStrategy {
	return c.strategy
}

// Get returns a copy of the entry for params, or false on a miss. A hit marks
// the key as most recently used and flags the entry stale once it is older
// than the stale tolerance. A miss creates nothing.
func (c *Cache[T]) Get(params Params, queryBase string) (Entry[T], bool) {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry[T]{}, false
	}
	c.hits++
	c.access.touch(key)

	if c.clock.Since(entry.Timestamp) > c.policy.StaleTolerance {
		entry.Stale = true
	}
	return entry.clone(), true
}

// Set stores result for params, replacing any previous entry or placeholder
// for the same key. It then runs cleanup and, when prefetching is enabled,
// queues neighbouring pages that are neither cached nor loading.
func (c *Cache[T]) Set(params Params, result Result[T], queryBase string) {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry[T]{
		Data:       result.Items,
		Pagination: result.Pagination,
		Timestamp:  c.clock.Now(),
		QueryKey:   key,
	}
	c.access.touch(key)
	delete(c.loading, key)

	c.cleanup()

	if c.strategy.Enabled {
		for _, cand := range c.candidates(params, result.Pagination, queryBase) {
			c.queue.push(DeriveKey(cand, queryBase), cand, queryBase)
		}
	}
}

// SetLoading records that a fetch for params is in flight. Without an
// existing entry a zero-data placeholder is created; otherwise the entry keeps
// its data and only its Loading flag is raised.
func (c *Cache[T]) SetLoading(params Params, queryBase string) {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Loading = true
	} else {
		c.entries[key] = &Entry[T]{
			Data:      []T{},
			Timestamp: c.clock.Now(),
			Loading:   true,
			QueryKey:  key,
		}
		// Placeholders hold a slot, so they need a recency stamp to be evictable.
		c.access.touch(key)
	}
	c.loading[key] = struct{}{}
}

// IsLoading reports whether a fetch for params is in flight.
func (c *Cache[T]) IsLoading(params Params, queryBase string) bool {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.loading[key]
	return ok
}

// ReleaseLoading ends an in-flight marker without storing data, for fetches
// that failed while an older entry was still worth serving. It reports whether
// the key was loading.
func (c *Cache[T]) ReleaseLoading(params Params, queryBase string) bool {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.loading[key]; !ok {
		return false
	}
	delete(c.loading, key)
	if entry, ok := c.entries[key]; ok {
		entry.Loading = false
	}
	return true
}

// Contains reports whether an entry or placeholder exists for params without
// touching recency, staleness or hit counters.
func (c *Cache[T]) Contains(params Params, queryBase string) bool {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

// Delete removes the entry for params and reports whether it existed.
func (c *Cache[T]) Delete(params Params, queryBase string) bool {
	key := DeriveKey(params, queryBase)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	c.remove(key)
	return ok
}

// Clear drops every entry and all bookkeeping. Owners call it on teardown.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry[T])
	c.loading = make(map[string]struct{})
	c.access.reset()
	c.queue.reset()
	c.hits, c.misses = 0, 0
	c.evictions, c.purged = 0, 0
}

// Len returns the number of entries, placeholders included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the stored keys from least to most recently used.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access.order.Keys()
}

// remove drops key and its bookkeeping. Must be called with mu held.
func (c *Cache[T]) remove(key string) {
	delete(c.entries, key)
	delete(c.loading, key)
	c.access.forget(key)
}
