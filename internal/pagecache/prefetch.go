package pagecache

// Candidate is a queued prefetch suggestion.
type Candidate struct {
	Key       string `json:"key"`
	Params    Params `json:"params"`
	QueryBase string `json:"query_base"`
}

// prefetchQueue is a FIFO of candidates with key-level dedup.
type prefetchQueue struct {
	items  []Candidate
	queued map[string]struct{}
}

func newPrefetchQueue() *prefetchQueue {
	return &prefetchQueue{queued: make(map[string]struct{})}
}

func (q *prefetchQueue) push(key string, p Params, queryBase string) bool {
	if _, ok := q.queued[key]; ok {
		return false
	}
	q.queued[key] = struct{}{}
	q.items = append(q.items, Candidate{Key: key, Params: p, QueryBase: queryBase})
	return true
}

func (q *prefetchQueue) take(n int) []Candidate {
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Candidate, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	for _, c := range out {
		delete(q.queued, c.Key)
	}
	return out
}

func (q *prefetchQueue) snapshot() []Candidate {
	out := make([]Candidate, len(q.items))
	copy(out, q.items)
	return out
}

func (q *prefetchQueue) len() int {
	return len(q.items)
}

func (q *prefetchQueue) reset() {
	q.items = nil
	q.queued = make(map[string]struct{})
}

// PrefetchCandidates computes the neighbouring pages of a page just fetched
// with params that are neither cached nor loading. It only plans; nothing is
// queued or fetched.
func (c *Cache[T]) PrefetchCandidates(params Params, result Result[T], queryBase string) []Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidates(params, result.Pagination, queryBase)
}

// TakePrefetch removes up to n queued candidates (all when n <= 0) in the
// order they were planned. Candidates that became cached or loading since
// they were queued are dropped rather than returned.
func (c *Cache[T]) TakePrefetch(n int) []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()

	taken := c.queue.take(n)
	out := taken[:0]
	for _, cand := range taken {
		if c.known(cand.Key) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// QueuedPrefetch returns the number of queued candidates.
func (c *Cache[T]) QueuedPrefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// PendingPrefetch returns the queued candidates without removing them.
func (c *Cache[T]) PendingPrefetch() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.snapshot()
}

// candidates must be called with mu held.
func (c *Cache[T]) candidates(params Params, meta Metadata, queryBase string) []Params {
	current := meta.Page
	if current <= 0 {
		current = params.Page
	}
	if current <= 0 {
		current = 1
	}

	neighbour := func(page int, cursor string) Params {
		return Params{
			Page:      page,
			PageSize:  params.PageSize,
			Cursor:    cursor,
			SortField: params.SortField,
			SortOrder: params.SortOrder,
		}
	}

	var out []Params
	for i := 1; i <= c.strategy.PagesAhead; i++ {
		if page := current + i; page <= meta.TotalPages {
			out = append(out, neighbour(page, ""))
		}
	}
	for i := 1; i <= c.strategy.PagesBehind; i++ {
		if page := current - i; page >= 1 {
			out = append(out, neighbour(page, ""))
		}
	}
	if meta.NextCursor != "" {
		out = append(out, neighbour(current+1, meta.NextCursor))
	}
	if meta.PrevCursor != "" {
		out = append(out, neighbour(current-1, meta.PrevCursor))
	}

	filtered := out[:0]
	for _, p := range out {
		if !c.known(DeriveKey(p, queryBase)) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// known reports whether key is stored or loading. Must be called with mu held.
func (c *Cache[T]) known(key string) bool {
	if _, ok := c.entries[key]; ok {
		return true
	}
	_, ok := c.loading[key]
	return ok
}
