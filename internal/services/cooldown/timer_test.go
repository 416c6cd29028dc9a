package cooldown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFinishesExactlyOnce(t *testing.T) {
	var finished atomic.Int32
	timer := NewTimer(func() { finished.Add(1) })
	timer.tick = 10 * time.Millisecond

	timer.startDuration(35 * time.Millisecond)
	assert.True(t, timer.Counting())

	require.Eventually(t, func() bool {
		return finished.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Give any stray reschedule a chance to fire.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), finished.Load(), "onFinish must fire exactly once")
	assert.False(t, timer.Counting(), "timer must be idle after completion")
	assert.Equal(t, 0, timer.Remaining())
}

func TestTimerStopCancelsPendingTick(t *testing.T) {
	var finished atomic.Int32
	timer := NewTimer(func() { finished.Add(1) })
	timer.tick = 10 * time.Millisecond

	timer.startDuration(30 * time.Millisecond)
	timer.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), finished.Load(), "a stopped timer must never fire")
	assert.False(t, timer.Counting())
}

func TestTimerRestartReplacesTarget(t *testing.T) {
	var finished atomic.Int32
	timer := NewTimer(func() { finished.Add(1) })
	timer.tick = 10 * time.Millisecond

	timer.startDuration(20 * time.Millisecond)
	timer.startDuration(60 * time.Millisecond)

	// The first target would have elapsed by now; only the second counts.
	time.Sleep(35 * time.Millisecond)
	assert.Equal(t, int32(0), finished.Load())
	assert.True(t, timer.Counting())

	require.Eventually(t, func() bool {
		return finished.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTimerRemainingRoundsUp(t *testing.T) {
	timer := NewTimer(nil)
	timer.startDuration(1500 * time.Millisecond)
	defer timer.Stop()

	assert.Equal(t, 2, timer.Remaining(), "remaining seconds round up")
}

func TestTimerTickReportsRemaining(t *testing.T) {
	done := make(chan struct{})
	timer := NewTimer(func() { close(done) })
	timer.tick = 10 * time.Millisecond

	var ticks atomic.Int32
	timer.OnTick(func(secondsRemaining int) {
		assert.GreaterOrEqual(t, secondsRemaining, 0)
		ticks.Add(1)
	})

	timer.startDuration(50 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never finished")
	}
	assert.Positive(t, ticks.Load(), "tick hook should fire while counting")
}
