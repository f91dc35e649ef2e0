// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"weak"
)

// PromiseState is the state of a [Promise].
type PromiseState int32

const (
	// PromisePending indicates the promise has not settled.
	PromisePending PromiseState = iota
	// PromiseResolved indicates the promise settled with a receiver.
	PromiseResolved
	// PromiseRejected indicates the promise settled with an error.
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "Pending"
	case PromiseResolved:
		return "Resolved"
	case PromiseRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Promise is the result of an asynchronous job, resolving to an
// [EventReceiver].
//
// Resolve and Reject may be called from any goroutine, but once the promise
// is added to a loop via [EventLoop.AddJob], it only ever settles on that
// loop's goroutine: completion is handed off through the thread event queue,
// and callbacks registered with Then run during a pump round. A promise
// completed before it is added to a loop settles on the round after AddJob.
type Promise struct {
	value    EventReceiver
	err      error
	done     chan struct{}
	loop     *EventLoop
	callback []func()
	// completion, recorded until the hand-off runs
	pendingValue EventReceiver
	pendingErr   error
	mu           sync.Mutex
	state        atomic.Int32
	completed    bool
}

// NewPromise returns a pending promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// State returns the current state. It is safe to call from any goroutine.
func (p *Promise) State() PromiseState {
	return PromiseState(p.state.Load())
}

// Done returns a channel that is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Result returns the settled value or error. Both are zero while pending.
func (p *Promise) Result() (EventReceiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Resolve completes the promise with receiver. Only the first of Resolve or
// Reject has any effect.
func (p *Promise) Resolve(receiver EventReceiver) {
	p.complete(receiver, nil)
}

// Reject completes the promise with err. Only the first of Resolve or Reject
// has any effect.
func (p *Promise) Reject(err error) {
	p.complete(nil, err)
}

// Then registers callbacks to run once the promise settles, on the loop
// goroutine if the promise was added to a loop. Either may be nil. If the
// promise has already settled, the matching callback runs immediately.
func (p *Promise) Then(onResolved func(receiver EventReceiver), onRejected func(err error)) {
	fn := func() {
		switch p.State() {
		case PromiseResolved:
			if onResolved != nil {
				onResolved(p.value)
			}
		case PromiseRejected:
			if onRejected != nil {
				onRejected(p.err)
			}
		}
	}
	p.mu.Lock()
	if p.State() == PromisePending {
		p.callback = append(p.callback, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

func (p *Promise) complete(value EventReceiver, err error) {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	p.completed = true
	p.pendingValue, p.pendingErr = value, err
	l := p.loop
	p.mu.Unlock()

	if l == nil {
		// settles once added to a loop
		return
	}
	l.handOff(p)
}

// attach binds the promise to l, handing off an earlier completion.
func (p *Promise) attach(l *EventLoop) bool {
	p.mu.Lock()
	if p.loop != nil {
		p.mu.Unlock()
		return false
	}
	p.loop = l
	completed := p.completed
	p.mu.Unlock()
	if completed {
		l.handOff(p)
	}
	return true
}

// settle moves the promise out of pending, using the recorded completion,
// then runs the callbacks. It is a no-op if already settled.
func (p *Promise) settle() bool {
	p.mu.Lock()
	return p.settleLocked(p.pendingValue, p.pendingErr)
}

// settleWith settles with the given outcome, regardless of completion.
func (p *Promise) settleWith(value EventReceiver, err error) bool {
	p.mu.Lock()
	p.completed = true
	return p.settleLocked(value, err)
}

// settleLocked must be called with mu held, and releases it.
func (p *Promise) settleLocked(value EventReceiver, err error) bool {
	if p.State() != PromisePending {
		p.mu.Unlock()
		return false
	}
	p.value, p.err = value, err
	p.pendingValue, p.pendingErr = nil, nil
	if err != nil {
		p.state.Store(int32(PromiseRejected))
	} else {
		p.state.Store(int32(PromiseResolved))
	}
	callbacks := p.callback
	p.callback = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return true
}

// handOff schedules the recorded completion of p to be applied on the loop
// goroutine. If the loop has gone away, the promise was already rejected by
// Close, and settle is a no-op.
func (l *EventLoop) handOff(p *Promise) {
	if err := l.DeferredInvoke(func() { l.settleJob(p) }); err != nil {
		p.settle()
	}
}

func (l *EventLoop) settleJob(p *Promise) {
	if !p.settle() {
		return
	}
	l.stats.jobsSettled.Add(1)
	l.log.debug(logCategoryJob).
		Str("state", p.State().String()).
		Log("job settled")
}

// AddJob registers p as a job of the loop. The loop guarantees p settles on
// its goroutine, even if Resolve or Reject is called elsewhere. Jobs still
// pending when the loop is closed are rejected with ErrLoopClosed.
//
// It must be called by the owner, and panics with a *UsageError if p was
// already added to a loop.
func (l *EventLoop) AddJob(p *Promise) {
	l.assertOwner("AddJob")
	if p == nil {
		usageViolation("AddJob", "nil promise")
	}
	if l.state.Load() == StateDestroyed {
		p.settleWith(nil, ErrLoopClosed)
		return
	}
	if !p.attach(l) {
		usageViolation("AddJob", "promise already added to a loop")
	}
	l.jobs.track(p)
}

// RunJob calls fn on a new goroutine, returning a promise added to the loop
// via AddJob, which settles with fn's result. If fn panics the promise is
// rejected with a PanicError, and if it exits via runtime.Goexit, with
// ErrGoexit. If ctx is done before fn starts, fn is not called.
//
// It must be called by the owner.
func (l *EventLoop) RunJob(ctx context.Context, fn func(ctx context.Context) (EventReceiver, error)) *Promise {
	p := NewPromise()
	l.AddJob(p)
	if p.State() != PromisePending {
		return p
	}

	go func() {
		completed := false

		select {
		case <-ctx.Done():
			p.Reject(ctx.Err())
			return
		default:
		}

		defer func() {
			if r := recover(); r != nil {
				p.Reject(PanicError{Value: r})
			} else if !completed {
				p.Reject(ErrGoexit)
			}
		}()

		res, err := fn(ctx)
		completed = true
		if err != nil {
			p.Reject(err)
		} else {
			p.Resolve(res)
		}
	}()

	return p
}

// jobRegistry tracks the pending jobs of one loop, using weak pointers so
// that an abandoned promise may be garbage collected.
type jobRegistry struct {
	data map[uint64]weak.Pointer[Promise]
	// ring is the scavenge order, 0 marks a removed entry
	ring   []uint64
	head   int
	nextID uint64
	mu     sync.Mutex
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{
		data:   make(map[uint64]weak.Pointer[Promise]),
		ring:   make([]uint64, 0, 64),
		nextID: 1,
	}
}

func (r *jobRegistry) track(p *Promise) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.data[id] = weak.Make(p)
	r.ring = append(r.ring, id)
}

func (r *jobRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// scavenge checks up to batchSize entries, removing those that settled or
// were collected.
func (r *jobRegistry) scavenge(batchSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if batchSize <= 0 || len(r.ring) == 0 {
		return
	}

	end := min(r.head+batchSize, len(r.ring))
	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		p := r.data[id].Value()
		if p == nil || p.State() != PromisePending {
			delete(r.data, id)
			r.ring[i] = 0
		}
	}

	r.head = end
	if r.head >= len(r.ring) {
		r.head = 0
		// compact once mostly empty
		if cap(r.ring) > 256 && len(r.data) < cap(r.ring)/4 {
			r.compact()
		}
	}
}

func (r *jobRegistry) compact() {
	ring := make([]uint64, 0, len(r.data))
	for _, id := range r.ring {
		if id != 0 {
			ring = append(ring, id)
		}
	}
	r.ring = ring
	r.head = 0
}

// rejectAll settles every pending job with err, returning the number
// rejected. Each settlement, including its callbacks, runs via exec.
func (r *jobRegistry) rejectAll(err error, exec func(fn func())) int {
	r.mu.Lock()
	var pending []*Promise
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if p := r.data[id].Value(); p != nil && p.State() == PromisePending {
			pending = append(pending, p)
		}
	}
	clear(r.data)
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	var n int
	for _, p := range pending {
		exec(func() {
			if p.settleWith(nil, err) {
				n++
			}
		})
	}
	return n
}
