package scope

import (
	"go.uber.org/zap"

	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/pagecache"
)

// Registry owns one cache per query scope. Closing a scope clears its cache,
// so data never leaks from one owner into another.
type Registry[T any] struct {
	caches   Manager[*pagecache.Cache[T]]
	policy   pagecache.EvictionPolicy
	strategy pagecache.PrefetchStrategy
	opts     []pagecache.Option
	logger   *zap.Logger
}

// NewRegistry creates a registry whose caches share policy and strategy.
func NewRegistry[T any](policy pagecache.EvictionPolicy, strategy pagecache.PrefetchStrategy, opts ...pagecache.Option) *Registry[T] {
	return &Registry[T]{
		policy:   policy,
		strategy: strategy,
		opts:     opts,
		logger:   logging.Named("scope"),
	}
}

// Open returns the cache for name, creating it on first use.
func (r *Registry[T]) Open(name string) *pagecache.Cache[T] {
	c, created := r.caches.GetOrCreate(name, func() *pagecache.Cache[T] {
		return pagecache.New[T](r.policy, r.strategy, r.opts...)
	})
	if created {
		r.logger.Debug("scope opened", zap.String("scope", name))
	}
	return c
}

// Get returns the cache for name if the scope is open.
func (r *Registry[T]) Get(name string) (*pagecache.Cache[T], bool) {
	return r.caches.Get(name)
}

// Names returns the open scopes in sorted order.
func (r *Registry[T]) Names() []string {
	return r.caches.Names()
}

// Close clears and forgets the cache of one scope. It reports whether the
// scope was open.
func (r *Registry[T]) Close(name string) bool {
	c, ok := r.caches.Remove(name)
	if !ok {
		return false
	}
	c.Clear()
	r.logger.Debug("scope closed", zap.String("scope", name))
	return true
}

// CloseAll closes every open scope.
func (r *Registry[T]) CloseAll() {
	for _, name := range r.caches.Names() {
		r.Close(name)
	}
}

// Stats returns a stats snapshot per open scope.
func (r *Registry[T]) Stats() map[string]pagecache.Stats {
	return CollectStats(&r.caches, func(c *pagecache.Cache[T]) pagecache.Stats {
		return c.Stats()
	})
}
