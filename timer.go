// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"container/heap"
	"time"
)

// TimerID identifies a timer registered via [RegisterTimer]. The zero value
// never identifies a timer.
type TimerID uint64

// TimerShouldFireWhenNotVisible is the visibility policy of a timer, see
// [TimerVisibility].
type TimerShouldFireWhenNotVisible int

const (
	// TimerShouldNotFireWhenNotVisible suppresses delivery while the
	// receiver implements TimerVisibility and reports not visible. The timer
	// keeps its schedule.
	TimerShouldNotFireWhenNotVisible TimerShouldFireWhenNotVisible = iota
	// TimerShouldFireWhenNotVisibleYes always delivers.
	TimerShouldFireWhenNotVisibleYes
)

// timer is a registered timer.
type timer struct {
	deadline time.Time
	receiver EventReceiver
	interval time.Duration
	id       TimerID
	policy   TimerShouldFireWhenNotVisible
	// index in the heap, maintained by timerHeap
	index  int
	repeat bool
}

// timerHeap is a min-heap of timers ordered by deadline, then ID.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerRegistry owns the timers of one loop.
type timerRegistry struct {
	byID   map[TimerID]*timer
	heap   timerHeap
	nextID TimerID
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{
		byID:   make(map[TimerID]*timer),
		nextID: 1,
	}
}

func (r *timerRegistry) add(now time.Time, receiver EventReceiver, interval time.Duration, repeat bool, policy TimerShouldFireWhenNotVisible) TimerID {
	if interval < 0 {
		interval = 0
	}
	t := &timer{
		deadline: now.Add(interval),
		receiver: receiver,
		interval: interval,
		id:       r.nextID,
		policy:   policy,
		repeat:   repeat,
	}
	r.nextID++
	r.byID[t.id] = t
	heap.Push(&r.heap, t)
	return t.id
}

// remove unregisters the timer, returning false if it is unknown.
func (r *timerRegistry) remove(id TimerID) bool {
	t, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	if t.index >= 0 {
		heap.Remove(&r.heap, t.index)
	}
	return true
}

func (r *timerRegistry) len() int { return len(r.byID) }

func (r *timerRegistry) has(id TimerID) bool {
	_, ok := r.byID[id]
	return ok
}

// nextDeadline returns the earliest deadline, if any.
func (r *timerRegistry) nextDeadline() (time.Time, bool) {
	if len(r.heap) == 0 {
		return time.Time{}, false
	}
	return r.heap[0].deadline, true
}

// collectDue pops every timer due at now, in deadline order. Repeating
// timers are rescheduled relative to now before any is fired, so that a
// timer cannot become due twice within the same round. Each returned timer
// must be claimed before firing. The result is not retained, as rounds may
// nest (a callback may pump its own loop).
func (r *timerRegistry) collectDue(now time.Time) []*timer {
	var due []*timer
	for len(r.heap) > 0 && !r.heap[0].deadline.After(now) {
		due = append(due, heap.Pop(&r.heap).(*timer))
	}
	for _, t := range due {
		if t.repeat {
			t.deadline = now.Add(t.interval)
			heap.Push(&r.heap, t)
		}
	}
	return due
}

// claim reports whether a collected timer is still registered, i.e. was
// not unregistered by an earlier callback of the same round, and
// unregisters it if it is single-shot.
func (r *timerRegistry) claim(t *timer) bool {
	if r.byID[t.id] != t {
		return false
	}
	if !t.repeat {
		delete(r.byID, t.id)
	}
	return true
}

// shouldDeliver applies the visibility policy.
func (t *timer) shouldDeliver() bool {
	if t.policy == TimerShouldFireWhenNotVisibleYes {
		return true
	}
	if v, ok := t.receiver.(TimerVisibility); ok {
		return v.VisibleForTimers()
	}
	return true
}

// RegisterTimer registers a timer on the current loop of the calling
// goroutine, which delivers a [TimerEvent] to receiver once the interval has
// elapsed, then, if repeat is true, every interval thereafter. A negative
// interval is treated as zero, which fires on the next round.
//
// Single-shot timers are unregistered automatically after firing.
// It panics with a *UsageError if the goroutine has no loop.
func RegisterTimer(receiver EventReceiver, interval time.Duration, repeat bool, policy TimerShouldFireWhenNotVisible) TimerID {
	l := currentFor("RegisterTimer")
	if receiver == nil {
		usageViolation("RegisterTimer", "nil receiver")
	}
	id := l.timers.add(time.Now(), receiver, interval, repeat, policy)
	l.log.debug(logCategoryTimer).
		Uint64("timer", uint64(id)).
		Dur("interval", interval).
		Bool("repeat", repeat).
		Log("timer registered")
	return id
}

// UnregisterTimer cancels future firings of a timer registered on the
// current loop. Unknown or already expired IDs are ignored. It panics with a
// *UsageError if the goroutine has no loop.
func UnregisterTimer(id TimerID) {
	l := currentFor("UnregisterTimer")
	if l.timers.remove(id) {
		l.log.debug(logCategoryTimer).
			Uint64("timer", uint64(id)).
			Log("timer unregistered")
	}
}
