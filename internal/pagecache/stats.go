package pagecache

import "time"

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size           int            `json:"size"`
	MaxSize        int            `json:"max_size"`
	StaleCount     int            `json:"stale_count"`
	LoadingCount   int            `json:"loading_count"`
	OldestEntry    *time.Duration `json:"oldest_entry"`
	NewestEntry    *time.Duration `json:"newest_entry"`
	HitRate        float64        `json:"hit_rate"`
	Hits           int64          `json:"hits"`
	Misses         int64          `json:"misses"`
	Evictions      int64          `json:"evictions"`
	Purged         int64          `json:"purged"`
	PrefetchQueued int            `json:"prefetch_queued"`
}

// Stats returns live counts plus the ages of the oldest and newest entries.
// HitRate is hits / (hits + misses) over Get calls since the last Clear.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:           len(c.entries),
		MaxSize:        c.policy.MaxCacheSize,
		LoadingCount:   len(c.loading),
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Purged:         c.purged,
		PrefetchQueued: c.queue.len(),
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}

	var oldest, newest time.Time
	for _, e := range c.entries {
		if e.Stale {
			s.StaleCount++
		}
		if oldest.IsZero() || e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
		if newest.IsZero() || e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	if len(c.entries) > 0 {
		now := c.clock.Now()
		oldestAge, newestAge := now.Sub(oldest), now.Sub(newest)
		s.OldestEntry = &oldestAge
		s.NewestEntry = &newestAge
	}
	return s
}
