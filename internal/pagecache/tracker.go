package pagecache

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// accessTracker orders keys by last access. Each touch stamps the key with a
// strictly increasing counter and moves it to the front of the list, so the
// least recently used key is always the list tail.
type accessTracker struct {
	order   *simplelru.LRU[string, uint64]
	counter uint64
}

func newAccessTracker() *accessTracker {
	// Capacity is enforced by cleanup, never by the list itself.
	order, err := simplelru.NewLRU[string, uint64](math.MaxInt, nil)
	if err != nil {
		panic(err)
	}
	return &accessTracker{order: order}
}

func (t *accessTracker) touch(key string) uint64 {
	t.counter++
	t.order.Add(key, t.counter)
	return t.counter
}

func (t *accessTracker) forget(key string) {
	t.order.Remove(key)
}

// leastRecent returns the key with the smallest counter.
func (t *accessTracker) leastRecent() (string, bool) {
	key, _, ok := t.order.GetOldest()
	return key, ok
}

func (t *accessTracker) len() int {
	return t.order.Len()
}

func (t *accessTracker) reset() {
	t.order.Purge()
	t.counter = 0
}
