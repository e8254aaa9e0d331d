package pagecache

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wudi/pagecache/internal/logging"
)

const (
	DefaultMaxCacheSize   = 50
	DefaultMaxAge         = 5 * time.Minute
	DefaultStaleTolerance = 30 * time.Second
	DefaultPagesAhead     = 2
	DefaultPagesBehind    = 1
	DefaultPrefetchDelay  = 100 * time.Millisecond
)

// EvictionPolicy bounds the cache. MaxCacheSize counts entries, not bytes.
type EvictionPolicy struct {
	MaxCacheSize   int           `yaml:"max_cache_size" json:"max_cache_size"`
	MaxAge         time.Duration `yaml:"max_age" json:"max_age"`
	StaleTolerance time.Duration `yaml:"stale_tolerance" json:"stale_tolerance"`
}

// PrefetchStrategy controls which neighbours are queued after a write.
// BandwidthAware is accepted but currently has no effect on planning.
type PrefetchStrategy struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	PagesAhead     int           `yaml:"pages_ahead" json:"pages_ahead"`
	PagesBehind    int           `yaml:"pages_behind" json:"pages_behind"`
	Delay          time.Duration `yaml:"delay" json:"delay"`
	BandwidthAware bool          `yaml:"bandwidth_aware" json:"bandwidth_aware"`
}

// DefaultEvictionPolicy returns the policy used when none is configured.
func DefaultEvictionPolicy() EvictionPolicy {
	return EvictionPolicy{
		MaxCacheSize:   DefaultMaxCacheSize,
		MaxAge:         DefaultMaxAge,
		StaleTolerance: DefaultStaleTolerance,
	}
}

// DefaultPrefetchStrategy returns the strategy used when none is configured.
func DefaultPrefetchStrategy() PrefetchStrategy {
	return PrefetchStrategy{
		Enabled:     true,
		PagesAhead:  DefaultPagesAhead,
		PagesBehind: DefaultPagesBehind,
		Delay:       DefaultPrefetchDelay,
	}
}

func (p EvictionPolicy) withDefaults() EvictionPolicy {
	if p.MaxCacheSize <= 0 {
		p.MaxCacheSize = DefaultMaxCacheSize
	}
	if p.MaxAge <= 0 {
		p.MaxAge = DefaultMaxAge
	}
	if p.StaleTolerance < 0 {
		p.StaleTolerance = DefaultStaleTolerance
	}
	return p
}

func (s PrefetchStrategy) withDefaults() PrefetchStrategy {
	if s.PagesAhead < 0 {
		s.PagesAhead = 0
	}
	if s.PagesBehind < 0 {
		s.PagesBehind = 0
	}
	if s.Delay < 0 {
		s.Delay = 0
	}
	return s
}

type options struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// Option customizes a Cache.
type Option func(*options)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for eviction and purge events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.Named("pagecache")
	}
	return o
}
