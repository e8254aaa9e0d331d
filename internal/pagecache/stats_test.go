package pagecache

import (
	"testing"
	"time"
)

func TestStats(t *testing.T) {
	c, clock := newTestCache(t, PrefetchStrategy{})

	empty := c.Stats()
	if empty.OldestEntry != nil || empty.NewestEntry != nil || empty.HitRate != 0 {
		t.Errorf("unexpected stats for empty cache: %+v", empty)
	}
	if empty.MaxSize != 5 {
		t.Errorf("expected max size 5, got %d", empty.MaxSize)
	}

	c.Set(pageParams(1), pageResult(1, 1), "q")
	clock.Advance(40 * time.Second)
	c.Set(pageParams(2), pageResult(2, 2), "q")
	c.SetLoading(pageParams(3), "q")
	clock.Advance(5 * time.Second)

	c.Get(pageParams(1), "q") // hit, turns stale
	c.Get(pageParams(2), "q") // hit, fresh
	c.Get(pageParams(9), "q") // miss

	s := c.Stats()
	if s.Size != 3 || s.StaleCount != 1 || s.LoadingCount != 1 {
		t.Errorf("unexpected live counts: %+v", s)
	}
	if s.OldestEntry == nil || *s.OldestEntry != 45*time.Second {
		t.Errorf("expected oldest age 45s, got %v", s.OldestEntry)
	}
	if s.NewestEntry == nil || *s.NewestEntry != 5*time.Second {
		t.Errorf("expected newest age 5s, got %v", s.NewestEntry)
	}
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %+v", s)
	}
	if want := 2.0 / 3.0; s.HitRate != want {
		t.Errorf("expected hit rate %v, got %v", want, s.HitRate)
	}
}
