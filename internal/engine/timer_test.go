package engine

import "testing"

// Tests drive tick directly so countdown behavior is deterministic; the
// goroutine loop only schedules tick at 1 Hz.

func TestTimerCountsDownAndFiresOnce(t *testing.T) {
	fired := 0
	timer := NewQuestionTimer(3, func() { fired++ }, nil)
	timer.Restart()

	for i := 0; i < 5; i++ {
		timer.tick()
	}

	if fired != 1 {
		t.Fatalf("expected exactly one expiry, got %d", fired)
	}
	snap := timer.Snapshot()
	if snap.Remaining != 0 || !snap.Expired {
		t.Fatalf("expected expired snapshot, got %+v", snap)
	}
}

func TestTimerPauseFreezesRemaining(t *testing.T) {
	timer := NewQuestionTimer(10, func() {}, nil)
	timer.Restart()

	timer.tick()
	timer.tick()
	timer.Pause()
	for i := 0; i < 4; i++ {
		timer.tick()
	}
	if got := timer.Snapshot().Remaining; got != 8 {
		t.Fatalf("expected remaining frozen at 8, got %d", got)
	}

	timer.Resume()
	timer.tick()
	if got := timer.Snapshot().Remaining; got != 7 {
		t.Fatalf("expected resume from frozen value, got %d", got)
	}
}

func TestTimerRestartNeverCarriesOver(t *testing.T) {
	timer := NewQuestionTimer(5, func() {}, nil)
	timer.Restart()
	timer.tick()
	timer.tick()

	timer.Restart()
	if got := timer.Snapshot().Remaining; got != 5 {
		t.Fatalf("expected full limit after restart, got %d", got)
	}
}

func TestTimerRestartRearmsExpiry(t *testing.T) {
	fired := 0
	timer := NewQuestionTimer(2, func() { fired++ }, nil)
	timer.Restart()
	timer.tick()
	timer.tick()
	if fired != 1 {
		t.Fatalf("expected first cycle expiry, got %d", fired)
	}

	timer.Restart()
	timer.tick()
	timer.tick()
	if fired != 2 {
		t.Fatalf("expected one expiry per cycle, got %d", fired)
	}
}

func TestTimerPauseResumeRaceNeverDoubleFires(t *testing.T) {
	fired := 0
	timer := NewQuestionTimer(1, func() { fired++ }, nil)
	timer.Restart()

	timer.tick() // fires
	timer.Pause()
	timer.Resume()
	timer.tick() // must not fire again: remaining is 0 and latch is set
	if fired != 1 {
		t.Fatalf("expected one-shot expiry across pause/resume, got %d", fired)
	}
}

func TestTimerStopSuppressesCallback(t *testing.T) {
	fired := 0
	timer := NewQuestionTimer(1, func() { fired++ }, nil)
	timer.Restart()
	timer.Stop()

	timer.tick()
	if fired != 0 {
		t.Fatalf("expected no callback after Stop, got %d", fired)
	}

	// Stop is idempotent.
	timer.Stop()
}

func TestTimerProgress(t *testing.T) {
	timer := NewQuestionTimer(10, func() {}, nil)
	timer.Restart()
	for i := 0; i < 4; i++ {
		timer.tick()
	}
	snap := timer.Snapshot()
	if snap.Progress != 40 {
		t.Fatalf("expected 40%% progress, got %v", snap.Progress)
	}
}

func TestTimerTickCallback(t *testing.T) {
	var snaps []TimerSnapshot
	timer := NewQuestionTimer(3, func() {}, func(s TimerSnapshot) { snaps = append(snaps, s) })
	timer.Restart()
	timer.tick()
	timer.tick()
	if len(snaps) != 2 {
		t.Fatalf("expected tick callback per tick, got %d", len(snaps))
	}
	if snaps[0].Remaining != 2 || snaps[1].Remaining != 1 {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}

func TestTimerCallbackPanicAbsorbed(t *testing.T) {
	var reported error
	timer := NewQuestionTimer(1, func() { panic("boom") }, nil)
	timer.onError = func(err error) { reported = err }
	timer.Restart()

	timer.tick()
	if reported == nil {
		t.Fatalf("expected panic reported through onError")
	}
	// Countdown is disposed; further ticks are inert.
	timer.tick()
}
