package pagecache

import "go.uber.org/zap"

// cleanup purges entries older than MaxAge, then evicts least recently used
// entries until the store fits MaxCacheSize. Must be called with mu held.
func (c *Cache[T]) cleanup() {
	now := c.clock.Now()

	// Age outranks recency: a hot entry past MaxAge still goes.
	for key, entry := range c.entries {
		if now.Sub(entry.Timestamp) > c.policy.MaxAge {
			c.remove(key)
			c.purged++
			c.logger.Debug("purged aged entry",
				zap.String("key", key),
				zap.Duration("age", now.Sub(entry.Timestamp)),
			)
		}
	}

	for len(c.entries) > c.policy.MaxCacheSize {
		victim, ok := c.leastRecentlyUsed()
		if !ok {
			c.logger.Warn("no eviction candidate found; leaving cache over capacity",
				zap.Int("size", len(c.entries)),
				zap.Int("max_size", c.policy.MaxCacheSize),
			)
			return
		}
		c.remove(victim)
		c.evictions++
		c.logger.Debug("evicted least recently used entry", zap.String("key", victim))
	}
}

// leastRecentlyUsed finds the stored key with the oldest access stamp. Stale
// tracker keys with no backing entry are dropped on the way.
func (c *Cache[T]) leastRecentlyUsed() (string, bool) {
	for c.access.len() > 0 {
		key, ok := c.access.leastRecent()
		if !ok {
			return "", false
		}
		if _, stored := c.entries[key]; stored {
			return key, true
		}
		c.access.forget(key)
	}
	return "", false
}
