package reactor

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTimer_ZeroIntervalSingleShot(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	r := &recordingReceiver{}
	id := RegisterTimer(r, 0, false, TimerShouldFireWhenNotVisibleYes)
	require.NotZero(t, id)
	require.True(t, loop.timers.has(id))

	assert.Equal(t, 1, loop.Pump(PollForEvents))
	assert.Equal(t, []TimerID{id}, r.Timers())
	assert.False(t, loop.timers.has(id))
	assert.Equal(t, 0, loop.timers.len())

	// expired handle: no-op
	UnregisterTimer(id)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, loop.Pump(PollForEvents))
	}
	assert.Len(t, r.Timers(), 1)
}

func TestRegisterTimer_FiresAfterInterval(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	const interval = 50 * time.Millisecond

	r := &recordingReceiver{}
	start := time.Now()
	RegisterTimer(r, interval, false, TimerShouldFireWhenNotVisibleYes)

	var rounds, dispatched int
	loop.SpinUntil(func() bool {
		if len(r.Timers()) != 0 {
			return true
		}
		rounds++
		return false
	})
	elapsed := time.Since(start)
	dispatched = len(r.Timers())

	assert.Equal(t, 1, dispatched)
	assert.GreaterOrEqual(t, elapsed, interval)
	assert.NotZero(t, rounds)
	assert.Equal(t, 0, loop.Pump(PollForEvents))
}

func TestRegisterTimer_Repeating(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	r := &recordingReceiver{}
	id := RegisterTimer(r, time.Millisecond, true, TimerShouldFireWhenNotVisibleYes)

	loop.SpinUntil(func() bool { return len(r.Timers()) >= 3 })
	assert.True(t, loop.timers.has(id))

	UnregisterTimer(id)
	assert.False(t, loop.timers.has(id))

	fired := len(r.Timers())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, loop.Pump(PollForEvents))
	assert.Len(t, r.Timers(), fired)
}

func TestRegisterTimer_RepeatingFiresOncePerRound(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	r := &recordingReceiver{}
	RegisterTimer(r, 0, true, TimerShouldFireWhenNotVisibleYes)

	assert.Equal(t, 1, loop.timers.len())
	for i := 1; i <= 3; i++ {
		loop.Pump(PollForEvents)
		assert.Len(t, r.Timers(), i)
	}
}

func TestRegisterTimer_DeadlineOrder(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	var order []time.Duration
	for _, d := range []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond} {
		RegisterTimer(&ReceiverFuncs{OnTimer: func(*TimerEvent) { order = append(order, d) }}, d, false, TimerShouldFireWhenNotVisibleYes)
	}

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 3, loop.Pump(PollForEvents))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, order)
}

func TestUnregisterTimer_WithinSameRound(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	var second TimerID
	first := &recordingReceiver{}
	first.onTimer = func(*TimerEvent) { UnregisterTimer(second) }
	other := &recordingReceiver{}

	RegisterTimer(first, 0, false, TimerShouldFireWhenNotVisibleYes)
	second = RegisterTimer(other, 0, true, TimerShouldFireWhenNotVisibleYes)

	assert.Equal(t, 1, loop.Pump(PollForEvents))
	assert.Len(t, first.Timers(), 1)
	assert.Empty(t, other.Timers())
	assert.Equal(t, 0, loop.timers.len())
}

func TestUnregisterTimer_Unknown(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	UnregisterTimer(0)
	UnregisterTimer(12345)
}

func TestRegisterTimer_Visibility(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	hidden := &hiddenReceiver{}
	forced := &hiddenReceiver{}
	hiddenID := RegisterTimer(hidden, 0, true, TimerShouldNotFireWhenNotVisible)
	RegisterTimer(forced, 0, true, TimerShouldFireWhenNotVisibleYes)

	assert.Equal(t, 1, loop.Pump(PollForEvents))
	assert.Empty(t, hidden.Timers())
	assert.Len(t, forced.Timers(), 1)
	assert.True(t, loop.timers.has(hiddenID), "suppressed timers keep their schedule")

	hidden.visible = true
	assert.Equal(t, 2, loop.Pump(PollForEvents))
	assert.Len(t, hidden.Timers(), 1)
}

func TestRegisterTimer_NegativeInterval(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	r := &recordingReceiver{}
	RegisterTimer(r, -time.Second, false, TimerShouldFireWhenNotVisibleYes)
	assert.Equal(t, 1, loop.Pump(PollForEvents))
	assert.Len(t, r.Timers(), 1)
}

func TestRegisterTimer_NilReceiver(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	expectUsageError(t, "RegisterTimer", func() {
		RegisterTimer(nil, 0, false, TimerShouldFireWhenNotVisibleYes)
	})
}

func TestRegisterTimer_PanickingReceiver(t *testing.T) {
	loop := newTestLoop(t)
	defer loop.Close()

	RegisterTimer(&ReceiverFuncs{OnTimer: func(*TimerEvent) { panic("timer") }}, 0, false, TimerShouldFireWhenNotVisibleYes)
	r := &recordingReceiver{}
	RegisterTimer(r, 0, false, TimerShouldFireWhenNotVisibleYes)

	assert.Equal(t, 2, loop.Pump(PollForEvents))
	assert.Len(t, r.Timers(), 1)
	assert.Equal(t, uint64(1), loop.Stats().CallbackPanics)
}

func TestTimerHeap_TieBreaksByID(t *testing.T) {
	now := time.Now()
	r := newTimerRegistry()
	recv := &recordingReceiver{}
	c := r.add(now, recv, time.Second, false, TimerShouldFireWhenNotVisibleYes)
	a := r.add(now, recv, 0, false, TimerShouldFireWhenNotVisibleYes)
	b := r.add(now, recv, 0, false, TimerShouldFireWhenNotVisibleYes)

	due := r.collectDue(now)
	require.Len(t, due, 2)
	assert.Equal(t, a, due[0].id)
	assert.Equal(t, b, due[1].id)

	deadline, ok := r.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), deadline)

	assert.True(t, r.remove(c))
	assert.False(t, r.remove(c))
	_, ok = r.nextDeadline()
	assert.False(t, ok)
}

func TestTimerHeap_RemoveMaintainsIndex(t *testing.T) {
	now := time.Now()
	r := newTimerRegistry()
	recv := &recordingReceiver{}
	var ids []TimerID
	for i := 10; i > 0; i-- {
		ids = append(ids, r.add(now, recv, time.Duration(i)*time.Millisecond, false, TimerShouldFireWhenNotVisibleYes))
	}
	for i := 0; i < len(ids); i += 2 {
		require.True(t, r.remove(ids[i]))
	}
	for i, tm := range r.heap {
		require.Equal(t, i, tm.index)
	}
	var last time.Time
	for r.heap.Len() > 0 {
		tm := heap.Pop(&r.heap).(*timer)
		assert.False(t, tm.deadline.Before(last))
		last = tm.deadline
	}
}

func TestTimeoutToMillis(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want int
	}{
		{-1, -1},
		{-time.Hour, -1},
		{0, 0},
		{1, 1},
		{time.Millisecond, 1},
		{time.Millisecond + 1, 2},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
		{1 << 62, 1<<31 - 1},
	} {
		assert.Equal(t, tc.want, timeoutToMillis(tc.in), "input %v", tc.in)
	}
}
