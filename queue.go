// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

// queueEntry is either a posted (receiver, event) pair, or a deferred
// closure (fn != nil).
type queueEntry struct {
	receiver EventReceiver
	event    Event
	fn       func()
}

// ThreadEventQueue is the FIFO of posted events and deferred closures for a
// single goroutine, shared by every loop on that goroutine's loop stack.
//
// Enqueue operations are safe for concurrent use. Drain is owner-only, and
// calls its visitor outside the lock, so visitors may enqueue; such entries
// are appended behind the entries already queued.
type ThreadEventQueue struct {
	mu      sync.Mutex
	entries *queue.Queue
	// closed is set on teardown, after which enqueue fails
	closed bool
}

func newThreadEventQueue() *ThreadEventQueue {
	return &ThreadEventQueue{entries: queue.New()}
}

// enqueueEvent appends a posted event, returning false if the queue has been
// torn down.
func (q *ThreadEventQueue) enqueueEvent(receiver EventReceiver, ev Event) bool {
	return q.push(queueEntry{receiver: receiver, event: ev})
}

// enqueueDeferred appends a deferred closure, returning false if the queue
// has been torn down.
func (q *ThreadEventQueue) enqueueDeferred(fn func()) bool {
	return q.push(queueEntry{fn: fn})
}

func (q *ThreadEventQueue) push(e queueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.entries.Add(e)
	return true
}

// Len returns the number of queued entries.
func (q *ThreadEventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Length()
}

// drain pops and visits entries in FIFO order until the queue is empty, or
// budget entries have been visited. It returns the number visited.
func (q *ThreadEventQueue) drain(budget int, visit func(queueEntry)) int {
	var n int
	for n < budget {
		q.mu.Lock()
		if q.entries.Length() == 0 {
			q.mu.Unlock()
			break
		}
		e := q.entries.Remove().(queueEntry)
		q.mu.Unlock()

		n++
		visit(e)
	}
	return n
}

// close tears down the queue, returning the number of discarded entries.
func (q *ThreadEventQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := q.entries.Length()
	q.entries = queue.New()
	return n
}
