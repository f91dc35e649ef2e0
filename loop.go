// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// jobScavengeBatch is the number of job registry entries checked per round.
const jobScavengeBatch = 20

// WaitMode controls whether [EventLoop.Pump] may block.
type WaitMode int

const (
	// WaitForEvents blocks until there is work, if a round finds none.
	WaitForEvents WaitMode = iota
	// PollForEvents never blocks.
	PollForEvents
)

func (m WaitMode) String() string {
	switch m {
	case WaitForEvents:
		return "WaitForEvents"
	case PollForEvents:
		return "PollForEvents"
	default:
		return "Unknown"
	}
}

var loopIDCounter atomic.Uint64

// EventLoop is a single-threaded cooperative reactor, owned by the goroutine
// that constructed it. See the package documentation for the ownership
// model.
type EventLoop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	backend   Backend
	thread    *threadContext
	timers    *timerRegistry
	notifiers *notifierRegistry
	signals   *signalRegistry
	jobs      *jobRegistry
	log       *loopLogger
	opts      *loopOptions

	stats loopStats

	id    uint64
	owner uint64

	// retryDelay is the current backend failure backoff, zero if the last
	// wait succeeded
	retryDelay time.Duration

	exitCode      atomic.Int64
	exitRequested atomic.Bool
	state         loopState

	// pumpDepth counts the Pump calls on the stack, which nest when a
	// callback spins the loop
	pumpDepth int
	executing bool
}

// New constructs a loop owned by the calling goroutine, and pushes it onto
// the goroutine's loop stack, making it the current loop. The goroutine is
// locked to its OS thread until the loop is closed.
//
// Callers must Close the loop, on the same goroutine, in the reverse order
// of construction.
func New(opts ...LoopOption) (*EventLoop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	backend, err := cfg.backend()
	if err != nil {
		return nil, fmt.Errorf("reactor: failed to create backend: %w", err)
	}

	runtime.LockOSThread()

	owner := getGoroutineID()
	id := loopIDCounter.Add(1)

	l := &EventLoop{
		backend:   backend,
		thread:    acquireThread(owner),
		timers:    newTimerRegistry(),
		notifiers: newNotifierRegistry(),
		signals:   newSignalRegistry(),
		jobs:      newJobRegistry(),
		log:       newLoopLogger(cfg.logger, id),
		opts:      cfg,
		id:        id,
		owner:     owner,
	}
	l.state.Store(StateConstructed)
	l.thread.push(l)

	l.log.debug(logCategoryLoop).
		Uint64("goroutine", owner).
		Log("loop created")

	return l, nil
}

// Close tears down the loop: pending jobs are rejected with ErrLoopClosed,
// signal handlers and notifiers are dropped, and the loop is popped from
// its goroutine's loop stack. If it was the last loop on the goroutine, the
// thread event queue is torn down, discarding any queued entries.
//
// Close must be called by the owner, on the current loop, outside of any
// pump round of the loop, otherwise it panics with a *UsageError.
// Subsequent calls return ErrLoopClosed.
func (l *EventLoop) Close() error {
	if l.state.Load() == StateDestroyed {
		return ErrLoopClosed
	}
	l.assertOwner("Close")
	if l.pumpDepth != 0 {
		usageViolation("Close", "loop is pumping")
	}
	if l.thread.top() != l {
		usageViolation("Close", "loop is not the current loop of its goroutine (loops must be closed in LIFO order)")
	}

	if n := l.jobs.rejectAll(ErrLoopClosed, l.safeExecute); n != 0 {
		l.log.debug(logCategoryJob).
			Int("count", n).
			Log("rejected pending jobs")
	}

	l.state.Store(StateDestroyed)
	l.closeSignals()
	l.notifiers.clear()
	l.thread.pop(l)

	if discarded, released := releaseThread(l.thread); released && discarded != 0 {
		l.log.warning(logCategoryQueue).
			Int("count", discarded).
			Log("discarded queued entries on teardown")
	}

	err := l.backend.Close()
	runtime.UnlockOSThread()

	l.log.debug(logCategoryLoop).
		Log("loop closed")

	if err != nil {
		return fmt.Errorf("reactor: failed to close backend: %w", err)
	}
	return nil
}

// Exec pumps the loop, blocking for events, until exit is requested via
// Quit, then returns the code passed to Quit. If exit was requested before
// Exec was called, it returns immediately.
//
// It must be called by the owner. Calling Exec on a loop that is already
// executing panics with a *UsageError; to run a nested loop, construct a new
// one.
func (l *EventLoop) Exec() int {
	l.assertOwner("Exec")
	l.assertOpen("Exec")
	if l.executing {
		usageViolation("Exec", "loop is already executing (construct a new loop to nest)")
	}

	l.executing = true
	defer func() { l.executing = false }()

	l.state.TryTransition(StateConstructed, StateRunning)

	for !l.exitRequested.Load() {
		l.Pump(WaitForEvents)
	}

	code := int(l.exitCode.Load())
	l.log.debug(logCategoryLoop).
		Int("code", code).
		Log("exec finished")
	return code
}

// Pump runs one round of the loop, returning the number of items
// dispatched, i.e. thread queue entries, timer events, and signal handler
// calls.
//
// A round drains the thread event queue, fires due timers, and dispatches
// pending signals, then consults the backend. The backend wait blocks only
// if mode is WaitForEvents and the round found no work, until the nearest
// timer deadline, or indefinitely if there are no timers. Ready descriptors
// enqueue activations, and if the backend blocked, was woken, or reported
// readiness, the queue, timers, and signals are processed once more.
// The round budget (WithRoundBudget) caps each drain of the queue, so a
// single Pump may dispatch up to twice the budget in queue entries.
//
// It must be called by the owner. Callbacks may call Pump (or SpinUntil)
// on their own loop, nesting the round, and a loop other than the current
// one may be pumped; entries posted while it waits wake it.
func (l *EventLoop) Pump(mode WaitMode) int {
	l.assertOwner("Pump")
	l.assertOpen("Pump")

	l.pumpDepth++
	defer func() { l.pumpDepth-- }()

	l.stats.rounds.Add(1)

	count := l.dispatchRound()

	l.thread.beginWait(l)
	timeout := l.waitTimeout(mode, count)
	result, err := l.backend.Wait(timeout)
	l.thread.endWait()
	if err != nil {
		l.backendFailed(err)
		return count
	}
	l.retryDelay = 0

	for _, ready := range result.Ready {
		n := l.notifiers.lookup(ready.FD)
		if n == nil {
			continue
		}
		if l.thread.queue.enqueueEvent(n, &NotifierActivationEvent{Notifier: n, Events: ready.Events, generation: n.generation}) {
			l.stats.notifierActivations.Add(1)
		}
	}

	if timeout != 0 || len(result.Ready) != 0 || result.Woken {
		count += l.dispatchRound()
	}

	l.jobs.scavenge(jobScavengeBatch)

	return count
}

// SpinUntil pumps the loop, blocking for events, until pred returns true.
// The predicate is evaluated on the owner, before each round, so no rounds
// run if it is already true.
func (l *EventLoop) SpinUntil(pred func() bool) {
	l.assertOwner("SpinUntil")
	for !pred() {
		l.Pump(WaitForEvents)
	}
}

// PostEvent enqueues ev for delivery to receiver, on the thread event queue
// of the loop's goroutine, and wakes the goroutine's current loop. It is
// safe to call from any goroutine, including from within a callback.
// After Close, it returns ErrLoopClosed.
func (l *EventLoop) PostEvent(receiver EventReceiver, ev Event) error {
	if receiver == nil || ev == nil {
		usageViolation("PostEvent", "nil receiver or event")
	}
	if l.state.Load() == StateDestroyed || !l.thread.queue.enqueueEvent(receiver, ev) {
		return ErrLoopClosed
	}
	l.thread.wake()
	return nil
}

// DeferredInvoke enqueues fn to run on a future round, on the loop's
// goroutine. Deferred functions and posted events share one FIFO, so they
// run in the order they were enqueued. It is safe to call from any
// goroutine. After Close, it returns ErrLoopClosed.
func (l *EventLoop) DeferredInvoke(fn func()) error {
	if fn == nil {
		usageViolation("DeferredInvoke", "nil function")
	}
	if l.state.Load() == StateDestroyed || !l.thread.queue.enqueueDeferred(fn) {
		return ErrLoopClosed
	}
	l.thread.wake()
	return nil
}

// DeferredInvoke is [EventLoop.DeferredInvoke] on the current loop of the
// calling goroutine. It panics with a *UsageError if the goroutine has no
// loop.
func DeferredInvoke(fn func()) error {
	return currentFor("DeferredInvoke").DeferredInvoke(fn)
}

// Wake unblocks the loop if it is waiting in its backend, or causes its next
// wait to return immediately. Wakes are coalesced until the loop observes
// them. It is safe to call from any goroutine. After Close, it returns
// ErrLoopClosed.
func (l *EventLoop) Wake() error {
	err := l.backend.Wake()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendClosed) {
		return ErrLoopClosed
	}
	l.log.rateLimitedErr(logCategoryBackend).
		Err(err).
		Log("failed to wake loop")
	return err
}

// Quit requests that Exec return code. It does not interrupt the current
// round: Exec observes the request between rounds. It is safe to call from
// any goroutine, and wakes the loop.
func (l *EventLoop) Quit(code int) {
	l.exitCode.Store(int64(code))
	l.exitRequested.Store(true)
	l.state.TransitionAny([]LoopState{StateConstructed, StateRunning}, StateExitRequested)
	_ = l.Wake()
	l.log.debug(logCategoryLoop).
		Int("code", code).
		Log("exit requested")
}

// WasExitRequested reports whether Quit has been called.
func (l *EventLoop) WasExitRequested() bool {
	return l.exitRequested.Load()
}

// State returns the lifecycle state of the loop.
func (l *EventLoop) State() LoopState {
	return l.state.Load()
}

// ID returns a process-unique identifier for the loop, as used in logs.
func (l *EventLoop) ID() uint64 {
	return l.id
}

func (l *EventLoop) dispatchRound() int {
	return l.drainQueue() + l.fireTimers() + l.dispatchSignals()
}

func (l *EventLoop) drainQueue() int {
	n := l.thread.queue.drain(l.opts.roundBudget, l.dispatchEntry)
	if n != 0 {
		l.stats.queueDispatched.Add(uint64(n))
	}
	return n
}

func (l *EventLoop) dispatchEntry(e queueEntry) {
	if e.fn != nil {
		l.safeExecute(e.fn)
		return
	}
	l.safeExecute(func() { e.receiver.HandleEvent(e.event) })
}

// fireTimers delivers due timers, in deadline order.
func (l *EventLoop) fireTimers() int {
	var count int
	for _, t := range l.timers.collectDue(time.Now()) {
		if !l.timers.claim(t) || !t.shouldDeliver() {
			continue
		}
		ev := &TimerEvent{ID: t.id}
		receiver := t.receiver
		l.safeExecute(func() { receiver.HandleTimer(ev) })
		count++
	}
	if count != 0 {
		l.stats.timersFired.Add(uint64(count))
	}
	return count
}

// waitTimeout returns the backend timeout for a round that found count
// items.
func (l *EventLoop) waitTimeout(mode WaitMode, count int) time.Duration {
	if mode == PollForEvents || count != 0 || l.thread.queue.Len() != 0 || l.signals.hasPending() {
		return 0
	}
	deadline, ok := l.timers.nextDeadline()
	if !ok {
		return -1
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// backendFailed logs a failed wait and backs off, doubling the delay on
// each consecutive failure.
func (l *EventLoop) backendFailed(err error) {
	l.stats.backendErrors.Add(1)
	if l.retryDelay == 0 {
		l.retryDelay = l.opts.retryMin
	} else {
		l.retryDelay = min(l.retryDelay*2, l.opts.retryMax)
	}
	l.log.rateLimitedErr(logCategoryBackend).
		Err(err).
		Dur("retry", l.retryDelay).
		Log("backend wait failed")
	time.Sleep(l.retryDelay)
}

// safeExecute calls fn, recovering and logging any panic other than a
// *UsageError, which is re-raised.
func (l *EventLoop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*UsageError); ok {
				panic(r)
			}
			l.stats.callbackPanics.Add(1)
			l.log.rateLimitedErr(logCategoryCallback).
				Any("panic", r).
				Log("callback panicked")
		}
	}()
	fn()
}

func (l *EventLoop) assertOwner(op string) {
	if getGoroutineID() != l.owner {
		usageViolation(op, "called from a goroutine other than the loop's owner")
	}
}

func (l *EventLoop) assertOpen(op string) {
	if l.state.Load() == StateDestroyed {
		usageViolation(op, "loop is closed")
	}
}
