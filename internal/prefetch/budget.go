package prefetch

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// tokenScale keeps token arithmetic in integers so that ten fetches at a
// ratio of 0.1 earn exactly one retry.
const tokenScale = 1000

// Budget is a shared pool of retry tokens. Every first fetch attempt earns
// ratio tokens, capped at a maximum, and every retry spends one. Retries under
// the per-second floor are granted without spending tokens.
type Budget struct {
	mu     sync.Mutex
	earn   int64
	tokens int64
	max    int64
	floor  *rate.Limiter
	clock  clockwork.Clock
}

// NewBudget creates a retry budget. maxTokens defaults to 10; a nil clock
// uses the real one.
func NewBudget(ratio float64, minRetriesPerSecond int, maxTokens float64, clock clockwork.Clock) *Budget {
	if maxTokens <= 0 {
		maxTokens = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &Budget{
		earn:  int64(ratio*tokenScale + 0.5),
		max:   int64(maxTokens * tokenScale),
		clock: clock,
	}
	if minRetriesPerSecond > 0 {
		b.floor = rate.NewLimiter(rate.Limit(minRetriesPerSecond), minRetriesPerSecond)
	}
	return b
}

// RecordFetch credits the budget for a first fetch attempt.
func (b *Budget) RecordFetch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += b.earn
	if b.tokens > b.max {
		b.tokens = b.max
	}
}

// Spend takes one retry from the budget, reporting false when none is left.
func (b *Budget) Spend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.floor != nil && b.floor.AllowN(b.clock.Now(), 1) {
		return true
	}
	if b.tokens >= tokenScale {
		b.tokens -= tokenScale
		return true
	}
	return false
}

// Tokens returns the retries currently available, floor excluded.
func (b *Budget) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.tokens) / tokenScale
}

// budgetedBackOff ends a retry schedule as soon as the budget refuses a
// retry the wrapped schedule would still allow.
type budgetedBackOff struct {
	backoff.BackOff
	budget  *Budget
	refused bool
}

func (b *budgetedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if !b.budget.Spend() {
		b.refused = true
		return backoff.Stop
	}
	return next
}

func (b *budgetedBackOff) Reset() {
	b.BackOff.Reset()
	b.refused = false
}
