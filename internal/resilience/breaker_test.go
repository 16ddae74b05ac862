package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"mathquest-quiz-service/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(clock *fakeClock) *Breaker {
	return NewBreaker("database", domain.KindDatabase, 3, 30*time.Second, WithClock(clock.Now))
}

func failingOp(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return errors.New("boom")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failingOp(&calls)); err == nil {
			t.Fatalf("expected failure on attempt %d", i+1)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	// Next call is rejected without invoking the operation.
	err := b.Do(ctx, failingOp(&calls))
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen rejection, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected operation not invoked while open, calls=%d", calls)
	}

	var classified *domain.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("expected classified rejection, got %T", err)
	}
	if classified.Kind != domain.KindDatabase || classified.Retryable {
		t.Fatalf("unexpected rejection classification: %+v", classified)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(&calls))
	}

	clock.Advance(31 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after recovery timeout, got %s", b.State())
	}

	probes := 0
	if err := b.Do(ctx, func(context.Context) error {
		probes++
		return nil
	}); err != nil {
		t.Fatalf("probe should succeed: %v", err)
	}
	if probes != 1 {
		t.Fatalf("expected one probe, got %d", probes)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.Failures())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(&calls))
	}
	clock.Advance(31 * time.Second)

	if err := b.Do(ctx, failingOp(&calls)); err == nil {
		t.Fatalf("expected probe failure")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected reopened after failed probe, got %s", b.State())
	}

	// Recovery window restarts from the failed probe.
	clock.Advance(10 * time.Second)
	if err := b.Do(ctx, failingOp(&calls)); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected rejection inside restarted window, got %v", err)
	}
	clock.Advance(21 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after restarted window, got %s", b.State())
	}
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(&calls))
	}
	clock.Advance(31 * time.Second)

	// Grab the probe slot but never resolve it; a second caller is rejected.
	if err := b.allow(); err != nil {
		t.Fatalf("first probe slot should be granted: %v", err)
	}
	if err := b.allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected second caller rejected during probe, got %v", err)
	}
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	_ = b.Do(ctx, failingOp(&calls))
	if err := b.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	// Two more failures must not trip the threshold of three.
	_ = b.Do(ctx, failingOp(&calls))
	_ = b.Do(ctx, failingOp(&calls))
	if b.State() != StateClosed {
		t.Fatalf("expected closed, non-consecutive failures must not trip, got %s", b.State())
	}
}

func TestBreakerResetCloses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(&calls))
	}
	b.Reset()
	if b.State() != StateClosed || b.Failures() != 0 {
		t.Fatalf("expected clean closed state after reset")
	}
}

func TestBreakerStateChangeHook(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var transitions []string
	b := NewBreaker("network", domain.KindNetwork, 2, time.Minute,
		WithClock(clock.Now),
		WithStateChangeHook(func(name string, from, to BreakerState) {
			transitions = append(transitions, string(from)+"->"+string(to))
		}),
	)
	ctx := context.Background()

	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	_ = b.Do(ctx, failingOp(&calls))
	clock.Advance(time.Minute)
	_ = b.Do(ctx, func(context.Context) error { return nil })

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, transitions)
		}
	}
}
