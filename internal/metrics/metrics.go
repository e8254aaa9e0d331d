package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wudi/pagecache/internal/pagecache"
	"github.com/wudi/pagecache/internal/prefetch"
)

const namespace = "pagecache"

// StatsSource returns a cache stats snapshot per scope.
type StatsSource func() map[string]pagecache.Stats

// DrainerSource returns a drainer stats snapshot per scope.
type DrainerSource func() map[string]prefetch.Stats

var (
	sizeDesc = prometheus.NewDesc(
		namespace+"_entries", "Number of cached entries and placeholders", []string{"scope"}, nil)
	maxSizeDesc = prometheus.NewDesc(
		namespace+"_max_entries", "Configured maximum number of entries", []string{"scope"}, nil)
	staleDesc = prometheus.NewDesc(
		namespace+"_stale_entries", "Entries served past their stale tolerance", []string{"scope"}, nil)
	loadingDesc = prometheus.NewDesc(
		namespace+"_loading_entries", "Fetches currently in flight", []string{"scope"}, nil)
	queuedDesc = prometheus.NewDesc(
		namespace+"_prefetch_queued", "Prefetch candidates waiting for the drainer", []string{"scope"}, nil)
	hitRateDesc = prometheus.NewDesc(
		namespace+"_hit_ratio", "Hits over lookups since the last clear", []string{"scope"}, nil)
	oldestDesc = prometheus.NewDesc(
		namespace+"_oldest_entry_age_seconds", "Age of the oldest entry", []string{"scope"}, nil)
	hitsDesc = prometheus.NewDesc(
		namespace+"_hits_total", "Cache lookups that found an entry", []string{"scope"}, nil)
	missesDesc = prometheus.NewDesc(
		namespace+"_misses_total", "Cache lookups that found nothing", []string{"scope"}, nil)
	evictionsDesc = prometheus.NewDesc(
		namespace+"_evictions_total", "Entries evicted as least recently used", []string{"scope"}, nil)
	purgedDesc = prometheus.NewDesc(
		namespace+"_purged_total", "Entries removed for exceeding the maximum age", []string{"scope"}, nil)

	fetchesDesc = prometheus.NewDesc(
		namespace+"_fetches_total", "Page fetches by outcome", []string{"scope", "outcome"}, nil)
	retriesDesc = prometheus.NewDesc(
		namespace+"_fetch_retries_total", "Retried page fetch attempts", []string{"scope"}, nil)
	coalescedDesc = prometheus.NewDesc(
		namespace+"_fetch_coalesced_total", "Loads that shared an in-flight fetch", []string{"scope"}, nil)
	inFlightDesc = prometheus.NewDesc(
		namespace+"_fetches_in_flight", "Page fetches currently running", []string{"scope"}, nil)
)

// Collector exports cache and drainer stats for Prometheus. Values are read
// from the sources on every scrape, so nothing has to be recorded up front.
type Collector struct {
	caches   StatsSource
	drainers DrainerSource
	registry *prometheus.Registry
	totals   counterTotals
}

// NewCollector creates a collector over caches and registers it with a
// private registry. drainers may be nil.
func NewCollector(caches StatsSource, drainers DrainerSource) *Collector {
	c := &Collector{
		caches:   caches,
		drainers: drainers,
		registry: prometheus.NewRegistry(),
		totals:   counterTotals{seen: make(map[counterKey]counterState)},
	}
	c.registry.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		sizeDesc, maxSizeDesc, staleDesc, loadingDesc, queuedDesc, hitRateDesc, oldestDesc,
		hitsDesc, missesDesc, evictionsDesc, purgedDesc,
		fetchesDesc, retriesDesc, coalescedDesc, inFlightDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.caches != nil {
		stats := c.caches()
		for _, scope := range sortedKeys(stats) {
			c.collectCache(ch, scope, stats[scope])
		}
	}
	if c.drainers != nil {
		stats := c.drainers()
		for _, scope := range sortedKeys(stats) {
			c.collectDrainer(ch, scope, stats[scope])
		}
	}
}

func (c *Collector) collectCache(ch chan<- prometheus.Metric, scope string, s pagecache.Stats) {
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, scope)
	}
	counter := func(d *prometheus.Desc, v int64) {
		total := c.totals.observe(counterKey{desc: d, scope: scope}, v)
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, total, scope)
	}

	gauge(sizeDesc, float64(s.Size))
	gauge(maxSizeDesc, float64(s.MaxSize))
	gauge(staleDesc, float64(s.StaleCount))
	gauge(loadingDesc, float64(s.LoadingCount))
	gauge(queuedDesc, float64(s.PrefetchQueued))
	gauge(hitRateDesc, s.HitRate)
	if s.OldestEntry != nil {
		gauge(oldestDesc, s.OldestEntry.Seconds())
	}

	counter(hitsDesc, s.Hits)
	counter(missesDesc, s.Misses)
	counter(evictionsDesc, s.Evictions)
	counter(purgedDesc, s.Purged)
}

func (c *Collector) collectDrainer(ch chan<- prometheus.Metric, scope string, s prefetch.Stats) {
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		key := counterKey{desc: d, scope: scope}
		if len(labels) > 0 {
			key.outcome = labels[0]
		}
		total := c.totals.observe(key, v)
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, total, append([]string{scope}, labels...)...)
	}

	counter(fetchesDesc, s.Fetched, "success")
	counter(fetchesDesc, s.Failed, "failure")
	counter(retriesDesc, s.Retries)
	counter(coalescedDesc, s.Coalesced)
	ch <- prometheus.MustNewConstMetric(inFlightDesc, prometheus.GaugeValue, float64(s.InFlight), scope)
}

type counterKey struct {
	desc    *prometheus.Desc
	scope   string
	outcome string
}

type counterState struct {
	last  int64
	total float64
}

// counterTotals turns source counters, which restart from zero on Clear and
// on every reload, into totals that only grow between scrapes. A value lower
// than the previous scrape is taken as a restart. Increments made after a
// restart but before the next scrape that already exceed the old value are
// under-counted.
type counterTotals struct {
	mu   sync.Mutex
	seen map[counterKey]counterState
}

func (t *counterTotals) observe(key counterKey, v int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.seen[key]
	if v < st.last {
		st.total += float64(v)
	} else {
		st.total += float64(v - st.last)
	}
	st.last = v
	t.seen[key] = st
	return st.total
}

// Registry returns the private registry the collector is registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
