package prefetch

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

func spendAll(b *Budget, limit int) int {
	n := 0
	for n < limit && b.Spend() {
		n++
	}
	return n
}

func TestBudgetEarnsTokensPerFetch(t *testing.T) {
	tests := []struct {
		name    string
		ratio   float64
		fetches int
		want    int
	}{
		{"half", 0.5, 10, 5},
		{"tenth", 0.1, 10, 1},
		{"below one token", 0.1, 9, 0},
		{"no fetches", 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBudget(tt.ratio, 0, 100, clockwork.NewFakeClock())
			for i := 0; i < tt.fetches; i++ {
				b.RecordFetch()
			}
			if got := spendAll(b, 100); got != tt.want {
				t.Errorf("expected %d retries, got %d", tt.want, got)
			}
		})
	}
}

func TestBudgetCapsTokens(t *testing.T) {
	b := NewBudget(1, 0, 3, clockwork.NewFakeClock())
	for i := 0; i < 10; i++ {
		b.RecordFetch()
	}
	if got := b.Tokens(); got != 3 {
		t.Errorf("expected tokens capped at 3, got %v", got)
	}
	if got := spendAll(b, 100); got != 3 {
		t.Errorf("expected 3 retries, got %d", got)
	}
}

func TestBudgetFloorRefillsOverTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBudget(0.01, 2, 0, clock)

	if got := spendAll(b, 100); got != 2 {
		t.Fatalf("expected the floor to allow 2 retries, got %d", got)
	}

	clock.Advance(time.Second)
	if got := spendAll(b, 100); got != 2 {
		t.Errorf("expected the floor to refill after a second, got %d", got)
	}
}

func TestBudgetedBackOffStopsWhenRefused(t *testing.T) {
	b := NewBudget(1, 0, 0, clockwork.NewFakeClock())
	b.RecordFetch()

	bo := &budgetedBackOff{BackOff: &backoff.ConstantBackOff{Interval: time.Millisecond}, budget: b}
	if got := bo.NextBackOff(); got != time.Millisecond {
		t.Fatalf("first retry should be granted, got %v", got)
	}
	if got := bo.NextBackOff(); got != backoff.Stop {
		t.Fatalf("second retry should be refused, got %v", got)
	}
	if !bo.refused {
		t.Error("expected refusal to be recorded")
	}

	bo.Reset()
	if bo.refused {
		t.Error("Reset should clear the refusal")
	}
}

func TestBudgetedBackOffKeepsInnerStop(t *testing.T) {
	b := NewBudget(1, 0, 0, clockwork.NewFakeClock())
	b.RecordFetch()

	bo := &budgetedBackOff{BackOff: &backoff.StopBackOff{}, budget: b}
	if got := bo.NextBackOff(); got != backoff.Stop {
		t.Fatalf("expected Stop, got %v", got)
	}
	if bo.refused {
		t.Error("an exhausted schedule is not a budget refusal")
	}
	if got := b.Tokens(); got != 1 {
		t.Errorf("no token should be spent, got %v left", got)
	}
}
