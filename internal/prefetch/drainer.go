package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wudi/pagecache/internal/config"
	pcerrors "github.com/wudi/pagecache/internal/errors"
	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/pagecache"
)

// ErrRetryBudgetExhausted is returned when a retry is refused by the budget.
var ErrRetryBudgetExhausted = errors.New("prefetch: retry budget exhausted")

// Fetcher performs the real fetch of one page.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, p pagecache.Params) (pagecache.Result[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, p pagecache.Params) (pagecache.Result[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, p pagecache.Params) (pagecache.Result[T], error) {
	return f(ctx, p)
}

// Config tunes a Drainer.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RPS            float64
	Burst          int

	// BudgetRatio enables a retry budget when positive: each fetch earns
	// that many retries.
	BudgetRatio         float64
	MinRetriesPerSecond int
}

// ConfigFrom extracts drainer settings from the daemon configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Workers:        cfg.PrefetchWorkers.Workers,
		PollInterval:   cfg.PrefetchWorkers.PollInterval,
		BatchSize:      cfg.PrefetchWorkers.BatchSize,
		MaxRetries:     cfg.Source.Retry.MaxRetries,
		InitialBackoff: cfg.Source.Retry.InitialBackoff,
		MaxBackoff:     cfg.Source.Retry.MaxBackoff,
		RPS:            cfg.Source.RateLimit.RPS,
		Burst:          cfg.Source.RateLimit.Burst,

		BudgetRatio:         cfg.Source.Retry.BudgetRatio,
		MinRetriesPerSecond: cfg.Source.Retry.MinRetriesPerSecond,
	}
}

// Stats holds drainer counters. Coalesced counts callers whose load was
// shared with at least one other caller.
type Stats struct {
	Fetched   int64 `json:"fetched"`
	Failed    int64 `json:"failed"`
	Retries   int64 `json:"retries"`
	Coalesced int64 `json:"coalesced"`
	InFlight  int64 `json:"in_flight"`
}

// Drainer is the fetch collaborator of one cache: it turns queued prefetch
// candidates into real fetches and reports progress back through SetLoading,
// Set, ReleaseLoading and Delete. Every SetLoading it issues is matched by one
// of the others, so a failed or cancelled fetch never leaves a stuck
// placeholder.
type Drainer[T any] struct {
	cache     *pagecache.Cache[T]
	queryBase string
	fetcher   Fetcher[T]
	cfg       Config
	limiter   *rate.Limiter
	budget    *Budget
	group     singleflight.Group
	logger    *zap.Logger

	fetched   atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
	coalesced atomic.Int64
	inFlight  atomic.Int64
}

// New creates a drainer feeding cache from fetcher under queryBase.
func New[T any](cache *pagecache.Cache[T], queryBase string, fetcher Fetcher[T], cfg Config) *Drainer[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Workers
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	var budget *Budget
	if cfg.BudgetRatio > 0 {
		budget = NewBudget(cfg.BudgetRatio, cfg.MinRetriesPerSecond, 0, nil)
	}

	return &Drainer[T]{
		cache:     cache,
		queryBase: queryBase,
		fetcher:   fetcher,
		cfg:       cfg,
		limiter:   limiter,
		budget:    budget,
		logger:    logging.Named("prefetch").With(zap.String("scope", queryBase)),
	}
}

// Load fetches one page in the foreground and stores it. Concurrent loads of
// the same key share a single fetch.
func (d *Drainer[T]) Load(ctx context.Context, p pagecache.Params) (pagecache.Result[T], error) {
	return d.load(ctx, p, d.queryBase)
}

func (d *Drainer[T]) load(ctx context.Context, p pagecache.Params, queryBase string) (pagecache.Result[T], error) {
	key := pagecache.DeriveKey(p, queryBase)

	v, err, shared := d.group.Do(key, func() (interface{}, error) {
		d.inFlight.Add(1)
		defer d.inFlight.Add(-1)

		existed := d.cache.Contains(p, queryBase)
		d.cache.SetLoading(p, queryBase)

		res, err := d.fetchWithRetry(ctx, p)
		if err != nil {
			if existed {
				d.cache.ReleaseLoading(p, queryBase)
			} else {
				d.cache.Delete(p, queryBase)
			}
			d.failed.Add(1)
			return nil, err
		}

		d.cache.Set(p, res, queryBase)
		d.fetched.Add(1)
		return res, nil
	})
	if shared {
		d.coalesced.Add(1)
	}
	if err != nil {
		return pagecache.Result[T]{}, err
	}
	return v.(pagecache.Result[T]), nil
}

func (d *Drainer[T]) fetchWithRetry(ctx context.Context, p pagecache.Params) (pagecache.Result[T], error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	bo.MaxInterval = d.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // bounded by MaxRetries instead

	var (
		policy   backoff.BackOff = backoff.WithMaxRetries(bo, uint64(d.cfg.MaxRetries))
		budgeted *budgetedBackOff
	)
	if d.budget != nil {
		d.budget.RecordFetch()
		budgeted = &budgetedBackOff{BackOff: policy, budget: d.budget}
		policy = budgeted
	}
	policy = backoff.WithContext(policy, ctx)

	op := func() (pagecache.Result[T], error) {
		if err := d.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return pagecache.Result[T]{}, backoff.Permanent(ctx.Err())
			}
			return pagecache.Result[T]{}, backoff.Permanent(pcerrors.ErrTooManyRequests.WithDetails(err.Error()))
		}
		res, err := d.fetcher.Fetch(ctx, p)
		if err != nil && !pcerrors.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, wait time.Duration) {
		d.retries.Add(1)
		d.logger.Debug("retrying page fetch",
			zap.Int("page", p.Page),
			zap.String("cursor", p.Cursor),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	res, err := backoff.RetryNotifyWithData[pagecache.Result[T]](op, policy, notify)
	if err != nil && budgeted != nil && budgeted.refused {
		return res, fmt.Errorf("%w: %w", ErrRetryBudgetExhausted, err)
	}
	return res, err
}

// Drain waits the strategy delay, then takes up to one batch of queued
// candidates and fetches them with at most Workers in parallel. It returns
// how many candidates were fetched successfully. Cancelling ctx during the
// delay leaves the queue untouched.
func (d *Drainer[T]) Drain(ctx context.Context) int {
	if d.cache.QueuedPrefetch() == 0 {
		return 0
	}

	if delay := d.cache.Strategy().Delay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0
		case <-timer.C:
		}
	}

	candidates := d.cache.TakePrefetch(d.cfg.BatchSize)
	if len(candidates) == 0 {
		return 0
	}

	var (
		wg  sync.WaitGroup
		ok  atomic.Int64
		sem = make(chan struct{}, d.cfg.Workers)
	)
	for _, cand := range candidates {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(ok.Load())
		}
		wg.Add(1)
		go func(cand pagecache.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := d.load(ctx, cand.Params, cand.QueryBase); err != nil {
				d.logger.Warn("prefetch failed",
					zap.String("key", cand.Key),
					zap.Error(err),
				)
				return
			}
			ok.Add(1)
		}(cand)
	}
	wg.Wait()
	return int(ok.Load())
}

// Run drains the queue every poll interval until ctx is cancelled.
func (d *Drainer[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("prefetch drainer started",
		zap.Int("workers", d.cfg.Workers),
		zap.Duration("poll_interval", d.cfg.PollInterval),
	)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("prefetch drainer stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Stats returns a snapshot of drainer counters.
func (d *Drainer[T]) Stats() Stats {
	return Stats{
		Fetched:   d.fetched.Load(),
		Failed:    d.failed.Load(),
		Retries:   d.retries.Load(),
		Coalesced: d.coalesced.Load(),
		InFlight:  d.inFlight.Load(),
	}
}
