package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"mathquest-quiz-service/internal/domain"
)

// BreakerState is the circuit position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrOpen is wrapped by the classified rejection error so callers can
// detect fast-fail rejections with errors.Is.
var ErrOpen = errors.New("circuit breaker open")

// Breaker guards one resource class (database, network). It opens after
// FailureThreshold consecutive failures, rejects everything while open,
// and after RecoveryTimeout lets exactly one probe call through.
//
// One instance per resource class is shared by every session in the
// process; pass it by reference rather than constructing per call site.
type Breaker struct {
	name             string
	kind             domain.ErrorKind
	failureThreshold int
	recoveryTimeout  time.Duration

	now           func() time.Time
	onStateChange func(name string, from, to BreakerState)
	onReject      func(name string)

	mu            sync.Mutex
	state         BreakerState
	failures      int
	lastFailureAt time.Time
	probeInFlight bool
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateChangeHook observes transitions (logging, metrics).
func WithStateChangeHook(hook func(name string, from, to BreakerState)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = hook }
}

// WithRejectHook observes fast-fail rejections.
func WithRejectHook(hook func(name string)) BreakerOption {
	return func(b *Breaker) { b.onReject = hook }
}

// NewBreaker builds a breaker for one resource class. kind determines
// the classified error used for rejections.
func NewBreaker(name string, kind domain.ErrorKind, failureThreshold int, recoveryTimeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:             name,
		kind:             kind,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn through the breaker. While open it rejects immediately
// without invoking fn; in half-open exactly one probe is allowed.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State reports the current circuit position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Failures reports the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed and clears counters. Intended for
// tests and admin tooling.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.failures = 0
	b.probeInFlight = false
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return b.rejectLocked()
		}
		b.probeInFlight = true
		return nil
	default:
		return b.rejectLocked()
	}
}

// refreshLocked moves open→half-open once the recovery timeout elapses.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.lastFailureAt) >= b.recoveryTimeout {
		b.transitionLocked(StateHalfOpen)
		b.probeInFlight = false
	}
}

func (b *Breaker) rejectLocked() error {
	if b.onReject != nil {
		b.onReject(b.name)
	}
	rejection := &domain.ClassifiedError{
		Kind:        b.kind,
		Message:     b.name + " unavailable: circuit open",
		UserMessage: "The service is temporarily unavailable. Please try again shortly.",
		Recoverable: true,
		Retryable:   false,
		Cause:       ErrOpen,
	}
	return rejection.WithContext("breaker", b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		// A successful probe fully resets the circuit.
		b.failures = 0
		b.probeInFlight = false
		if b.state != StateClosed {
			b.transitionLocked(StateClosed)
		}
		return
	}

	b.lastFailureAt = b.now()
	if b.state == StateHalfOpen {
		// Failed probe: back to open, recovery window restarts.
		b.probeInFlight = false
		b.transitionLocked(StateOpen)
		return
	}

	b.failures++
	if b.failures >= b.failureThreshold && b.state == StateClosed {
		b.transitionLocked(StateOpen)
	}
}

func (b *Breaker) transitionLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}
