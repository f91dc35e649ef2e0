// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"sync"
)

// threadContext is the per-goroutine state: the loop stack and the thread
// event queue. It exists while at least one loop exists on the goroutine.
type threadContext struct {
	queue *ThreadEventQueue
	// stack is mutated only by the owner, but read by wake, from any
	// goroutine
	stack []*EventLoop
	// waiting is the loop blocked in (or about to enter) its backend wait,
	// which need not be the top of the stack
	waiting *EventLoop
	id      uint64
	mu      sync.Mutex
}

// threads maps goroutine IDs to their threadContext.
var threads struct {
	m map[uint64]*threadContext
	sync.Mutex
}

func lookupThread(id uint64) *threadContext {
	threads.Lock()
	defer threads.Unlock()
	return threads.m[id]
}

// acquireThread returns the context for the goroutine, creating it if
// necessary.
func acquireThread(id uint64) *threadContext {
	threads.Lock()
	defer threads.Unlock()
	if t, ok := threads.m[id]; ok {
		return t
	}
	if threads.m == nil {
		threads.m = make(map[uint64]*threadContext)
	}
	t := &threadContext{id: id, queue: newThreadEventQueue()}
	threads.m[id] = t
	return t
}

// releaseThread removes the context if its loop stack is empty, tearing
// down its queue. It returns the number of discarded queue entries, and
// whether the context was released.
func releaseThread(t *threadContext) (int, bool) {
	threads.Lock()
	defer threads.Unlock()
	t.mu.Lock()
	empty := len(t.stack) == 0
	t.mu.Unlock()
	if !empty {
		return 0, false
	}
	if threads.m[t.id] == t {
		delete(threads.m, t.id)
	}
	return t.queue.close(), true
}

func (t *threadContext) push(l *EventLoop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stack = append(t.stack, l)
}

// pop removes l, which must be the top of the stack.
func (t *threadContext) pop(l *EventLoop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.stack); n == 0 || t.stack[n-1] != l {
		usageViolation("Close", "loop is not the current loop of its goroutine (loops must be closed in LIFO order)")
	}
	t.stack[len(t.stack)-1] = nil
	t.stack = t.stack[:len(t.stack)-1]
}

func (t *threadContext) top() *EventLoop {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.stack); n != 0 {
		return t.stack[n-1]
	}
	return nil
}

// beginWait marks l as the loop about to wait in its backend. It must be
// called before the wait timeout is computed, so that an enqueue either
// observes l as waiting, or is observed by the timeout.
func (t *threadContext) beginWait(l *EventLoop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiting = l
}

func (t *threadContext) endWait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiting = nil
}

// wake wakes the current loop of the goroutine, and the loop waiting in its
// backend, if that is a different loop (an outer loop pumped while a nested
// loop exists).
func (t *threadContext) wake() {
	t.mu.Lock()
	var top *EventLoop
	if n := len(t.stack); n != 0 {
		top = t.stack[n-1]
	}
	waiting := t.waiting
	t.mu.Unlock()
	if top != nil {
		_ = top.Wake()
	}
	if waiting != nil && waiting != top {
		_ = waiting.Wake()
	}
}

// Current returns the current (innermost) loop of the calling goroutine.
// It panics with a *UsageError if the goroutine has no loop.
func Current() *EventLoop {
	return currentFor("Current")
}

// IsRunning reports whether the calling goroutine has at least one loop.
func IsRunning() bool {
	if t := lookupThread(getGoroutineID()); t != nil {
		return t.top() != nil
	}
	return false
}

func currentFor(op string) *EventLoop {
	if t := lookupThread(getGoroutineID()); t != nil {
		if l := t.top(); l != nil {
			return l
		}
	}
	usageViolation(op, "no event loop on the calling goroutine")
	panic("unreachable")
}
