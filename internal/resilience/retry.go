package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"mathquest-quiz-service/internal/domain"
)

// RetryConfig defines backoff behavior for one error kind.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// defaultRetryConfigs maps retryable error kinds to their backoff
// schedules. Kinds absent here (validation, timer, quiz state) are
// attempted exactly once.
var defaultRetryConfigs = map[domain.ErrorKind]RetryConfig{
	domain.KindNetwork:      {MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 2},
	domain.KindDatabase:     {MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: 6 * time.Second, Multiplier: 1.5},
	domain.KindQuestionLoad: {MaxAttempts: 3, BaseDelay: 1500 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2},
	domain.KindSave:         {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2},
}

// maxJitter is added on top of each backoff delay to avoid synchronized
// retry storms across clients.
const maxJitter = time.Second

// Retrier re-attempts classified-retryable operations with capped
// exponential backoff plus jitter. The error is re-classified on every
// attempt, so a retry that surfaces a different underlying failure is
// judged against that failure's schedule.
type Retrier struct {
	configs map[domain.ErrorKind]RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() time.Duration
	onRetry func(kind domain.ErrorKind, attempt int, delay time.Duration)
}

// RetryOption customizes a Retrier.
type RetryOption func(*Retrier)

// WithSleep injects the delay function, letting tests capture delays
// instead of sleeping.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithJitter injects the jitter source.
func WithJitter(jitter func() time.Duration) RetryOption {
	return func(r *Retrier) { r.jitter = jitter }
}

// WithRetryHook observes each scheduled retry (logging, metrics).
func WithRetryHook(hook func(kind domain.ErrorKind, attempt int, delay time.Duration)) RetryOption {
	return func(r *Retrier) { r.onRetry = hook }
}

// WithConfig overrides the schedule for one kind.
func WithConfig(kind domain.ErrorKind, cfg RetryConfig) RetryOption {
	return func(r *Retrier) { r.configs[kind] = cfg }
}

func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		configs: make(map[domain.ErrorKind]RetryConfig, len(defaultRetryConfigs)),
		sleep:   sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
	for kind, cfg := range defaultRetryConfigs {
		r.configs[kind] = cfg
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op until it succeeds, exhausts the schedule for its error
// kind, or hits a non-retryable failure. The returned error is always
// classified.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		classified := domain.Classify(err)
		if !classified.Retryable {
			return classified
		}
		cfg, ok := r.configs[classified.Kind]
		if !ok || attempt >= cfg.MaxAttempts {
			return classified
		}

		delay := backoffDelay(cfg, attempt) + r.jitter()
		if r.onRetry != nil {
			r.onRetry(classified.Kind, attempt, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return classified
		}
	}
}

// backoffDelay computes min(base * multiplier^(attempt-1), max).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
