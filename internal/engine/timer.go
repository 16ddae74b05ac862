package engine

import (
	"fmt"
	"sync"
	"time"
)

// TimerSnapshot is the read-only countdown view exposed to clients.
type TimerSnapshot struct {
	Remaining int     `json:"timeRemaining"` // seconds
	Progress  float64 `json:"progress"`      // elapsed/limit, 0..100
	Expired   bool    `json:"isTimeUp"`
}

// QuestionTimer runs a cooperative 1 Hz countdown for the question under
// play. Pausing freezes the remaining time; each Restart begins fresh at
// the full limit. The expiry callback fires at most once per countdown
// cycle, and Stop is synchronous: after it returns no callback runs.
type QuestionTimer struct {
	mu        sync.Mutex
	limit     int // seconds
	remaining int
	paused    bool
	fired     bool
	stopped   bool

	onTimeUp func()
	onTick   func(TimerSnapshot)
	onError  func(error)

	interval time.Duration
	done     chan struct{}
	runOnce  sync.Once
}

// NewQuestionTimer builds a timer for the given per-question limit. The
// callbacks are invoked from the timer goroutine; onTick may be nil.
func NewQuestionTimer(limitSeconds int, onTimeUp func(), onTick func(TimerSnapshot)) *QuestionTimer {
	return &QuestionTimer{
		limit:     limitSeconds,
		remaining: limitSeconds,
		paused:    true,
		onTimeUp:  onTimeUp,
		onTick:    onTick,
		interval:  time.Second,
		done:      make(chan struct{}),
	}
}

// Start launches the periodic tick loop. Safe to call once; the timer
// stays paused until Restart or Resume.
func (t *QuestionTimer) Start() {
	t.runOnce.Do(func() {
		go t.run()
	})
}

func (t *QuestionTimer) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick advances the countdown by one second. The expiry callback is
// invoked outside the lock so it may re-enter timer methods; the fired
// latch keeps it one-shot even if pause/resume races with expiry.
// A panicking callback stops the countdown and reports through onError,
// so the quiz continues untimed instead of crashing.
func (t *QuestionTimer) tick() {
	defer func() {
		if r := recover(); r != nil {
			t.Stop()
			t.mu.Lock()
			onError := t.onError
			t.mu.Unlock()
			if onError != nil {
				onError(fmt.Errorf("question timer callback panic: %v", r))
			}
		}
	}()
	t.mu.Lock()
	if t.stopped || t.paused || t.fired {
		t.mu.Unlock()
		return
	}
	if t.remaining > 0 {
		t.remaining--
	}
	expired := t.remaining == 0
	if expired {
		t.fired = true
	}
	snapshot := t.snapshotLocked()
	onTick := t.onTick
	onTimeUp := t.onTimeUp
	t.mu.Unlock()

	if onTick != nil {
		onTick(snapshot)
	}
	if expired && onTimeUp != nil {
		onTimeUp()
	}
}

// Restart resets the countdown fresh at the full limit and unpauses.
// Remaining time never carries over from the previous question.
func (t *QuestionTimer) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = t.limit
	t.fired = false
	t.paused = false
}

// Pause freezes the remaining time.
func (t *QuestionTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume continues from the frozen value.
func (t *QuestionTimer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.paused = false
	}
}

// Stop disposes the timer. Synchronous: once it returns, no tick will
// decrement the countdown or fire the expiry callback.
func (t *QuestionTimer) Stop() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		t.fired = true
		close(t.done)
	}
	t.mu.Unlock()
}

// Snapshot returns the current countdown view.
func (t *QuestionTimer) Snapshot() TimerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *QuestionTimer) snapshotLocked() TimerSnapshot {
	progress := 0.0
	if t.limit > 0 {
		progress = float64(t.limit-t.remaining) / float64(t.limit) * 100
	}
	return TimerSnapshot{
		Remaining: t.remaining,
		Progress:  progress,
		Expired:   t.remaining == 0 && t.limit > 0,
	}
}
