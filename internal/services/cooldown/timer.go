package cooldown

import (
	"math"
	"sync"
	"time"
)

// Timer counts down the seconds until a rate-limited credential entry
// re-enters rotation. It has two states: counting (a target end time is set in
// the future) and idle. The countdown is driven by a self-rescheduling tick
// that recomputes the remaining time against the wall clock on every fire, so
// drift never accumulates past the target. onFinish is invoked exactly once
// when the target passes; Stop cancels the pending tick and invalidates any
// callback already scheduled.
type Timer struct {
	mu       sync.Mutex
	gen      uint64
	target   time.Time
	pending  *time.Timer
	tick     time.Duration
	onFinish func()
	onTick   func(secondsRemaining int)
}

// NewTimer creates an idle Timer with a 1-second tick granularity.
func NewTimer(onFinish func()) *Timer {
	return &Timer{tick: time.Second, onFinish: onFinish}
}

// OnTick registers a display hook invoked with the remaining whole seconds on
// every tick while counting.
func (t *Timer) OnTick(fn func(secondsRemaining int)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Start begins a countdown of the given number of seconds. The absolute target
// time is computed once; a Start while already counting replaces the target.
func (t *Timer) Start(seconds int) {
	t.startDuration(time.Duration(seconds) * time.Second)
}

func (t *Timer) startDuration(d time.Duration) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.target = time.Now().Add(d)
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = time.AfterFunc(t.tick, func() { t.fire(gen) })
	t.mu.Unlock()
}

// Stop cancels the countdown without invoking onFinish. Safe to call on an
// idle timer and required on teardown while counting.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.gen++
	t.target = time.Time{}
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.mu.Unlock()
}

// Counting reports whether a countdown is in progress.
func (t *Timer) Counting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.target.IsZero()
}

// Remaining returns the whole seconds left, rounded up, or 0 when idle.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return remainingSeconds(t.target)
}

func remainingSeconds(target time.Time) int {
	if target.IsZero() {
		return 0
	}
	left := time.Until(target)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		// Stale callback from before a Stop or restart.
		t.mu.Unlock()
		return
	}

	if !time.Now().Before(t.target) {
		t.target = time.Time{}
		t.pending = nil
		finish := t.onFinish
		t.mu.Unlock()
		if finish != nil {
			finish()
		}
		return
	}

	onTick := t.onTick
	remaining := remainingSeconds(t.target)
	t.pending = time.AfterFunc(t.tick, func() { t.fire(gen) })
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
}
