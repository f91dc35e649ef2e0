// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSignal is the highest signal number that may be registered, bounded
// by the width of the pending mask.
const maxSignal = 64

// SignalHandlerID identifies a handler registered via [RegisterSignal]. The
// zero value never identifies a handler.
type SignalHandlerID uint64

type signalHandler struct {
	fn    func(signo int)
	id    SignalHandlerID
	signo int
}

// signalRegistry owns the signal handlers of one loop.
//
// Delivery is two-phase: the relay goroutine only sets the signal's bit in
// pending and wakes the loop, then the loop calls the handlers during a
// pump round.
type signalRegistry struct {
	bySigno map[int][]*signalHandler
	byID    map[SignalHandlerID]*signalHandler
	// pending has bit signo-1 set for each signal received but not yet
	// dispatched; written by relay goroutines
	pending atomic.Uint64
	nextID  SignalHandlerID
}

func newSignalRegistry() *signalRegistry {
	return &signalRegistry{
		bySigno: make(map[int][]*signalHandler),
		byID:    make(map[SignalHandlerID]*signalHandler),
		nextID:  1,
	}
}

func (r *signalRegistry) len() int { return len(r.byID) }

func (r *signalRegistry) raise(signo int) {
	r.pending.Or(1 << (signo - 1))
}

func (r *signalRegistry) hasPending() bool {
	return r.pending.Load() != 0
}

func validSignal(signo int) bool {
	if signo < 1 || signo > maxSignal {
		return false
	}
	switch syscall.Signal(signo) {
	case unix.SIGKILL, unix.SIGSTOP:
		return false
	}
	return true
}

// dispatchSignals runs the handlers of every pending signal, in signal number
// order, then registration order. It returns the number of handlers called.
func (l *EventLoop) dispatchSignals() int {
	r := l.signals
	bits := r.pending.Swap(0)
	if bits == 0 {
		return 0
	}
	var count int
	for signo := 1; signo <= maxSignal; signo++ {
		if bits&(1<<(signo-1)) == 0 {
			continue
		}
		// handlers may unregister themselves or each other
		handlers := append([]*signalHandler(nil), r.bySigno[signo]...)
		for _, h := range handlers {
			if r.byID[h.id] != h {
				continue
			}
			l.safeExecute(func() { h.fn(signo) })
			count++
		}
	}
	l.stats.signalsDispatched.Add(uint64(count))
	return count
}

// closeSignals unsubscribes the loop from every signal it handles.
func (l *EventLoop) closeSignals() {
	r := l.signals
	for signo := range r.bySigno {
		signalHub.unsubscribe(signo, l)
	}
	clear(r.bySigno)
	clear(r.byID)
	r.pending.Store(0)
}

// RegisterSignal registers handler to be called on the current loop of the
// calling goroutine, each time signo is received. Multiple handlers may be
// registered for the same signal. Signal numbers outside 1..64, SIGKILL, and
// SIGSTOP are rejected with ErrInvalidSignal. It panics with a *UsageError if
// the goroutine has no loop.
//
// While at least one handler is registered, in any loop, the signal is
// relayed via [signal.Notify] instead of taking its default action.
func RegisterSignal(signo int, handler func(signo int)) (SignalHandlerID, error) {
	l := currentFor("RegisterSignal")
	if handler == nil {
		usageViolation("RegisterSignal", "nil handler")
	}
	if !validSignal(signo) {
		return 0, ErrInvalidSignal
	}
	r := l.signals
	h := &signalHandler{fn: handler, id: r.nextID, signo: signo}
	r.nextID++
	if len(r.bySigno[signo]) == 0 {
		signalHub.subscribe(signo, l)
	}
	r.bySigno[signo] = append(r.bySigno[signo], h)
	r.byID[h.id] = h
	l.log.debug(logCategorySignal).
		Int("signo", signo).
		Uint64("handler", uint64(h.id)).
		Log("signal handler registered")
	return h.id, nil
}

// UnregisterSignal removes a handler registered on the current loop of the
// calling goroutine. Unknown IDs are ignored. It panics with a *UsageError if
// the goroutine has no loop.
func UnregisterSignal(id SignalHandlerID) {
	l := currentFor("UnregisterSignal")
	r := l.signals
	h, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	handlers := r.bySigno[h.signo]
	for i, v := range handlers {
		if v == h {
			handlers = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(handlers) == 0 {
		delete(r.bySigno, h.signo)
		signalHub.unsubscribe(h.signo, l)
	} else {
		r.bySigno[h.signo] = handlers
	}
	l.log.debug(logCategorySignal).
		Int("signo", h.signo).
		Uint64("handler", uint64(id)).
		Log("signal handler unregistered")
}

// signalRoute relays one signal number to its subscribed loops.
type signalRoute struct {
	ch          chan os.Signal
	done        chan struct{}
	subscribers map[*EventLoop]struct{}
}

// signalHub is the process-wide owner of signal.Notify registrations.
var signalHub = &signalRelay{routes: make(map[int]*signalRoute)}

type signalRelay struct {
	routes map[int]*signalRoute
	mu     sync.Mutex
}

func (x *signalRelay) subscribe(signo int, l *EventLoop) {
	x.mu.Lock()
	defer x.mu.Unlock()
	route, ok := x.routes[signo]
	if !ok {
		route = &signalRoute{
			ch:          make(chan os.Signal, 1),
			done:        make(chan struct{}),
			subscribers: make(map[*EventLoop]struct{}),
		}
		x.routes[signo] = route
		signal.Notify(route.ch, syscall.Signal(signo))
		go x.relay(signo, route)
	}
	route.subscribers[l] = struct{}{}
}

func (x *signalRelay) unsubscribe(signo int, l *EventLoop) {
	x.mu.Lock()
	defer x.mu.Unlock()
	route, ok := x.routes[signo]
	if !ok {
		return
	}
	delete(route.subscribers, l)
	if len(route.subscribers) != 0 {
		return
	}
	signal.Stop(route.ch)
	close(route.done)
	delete(x.routes, signo)
}

// relay marks the signal pending on each subscribed loop, and wakes it.
func (x *signalRelay) relay(signo int, route *signalRoute) {
	for {
		select {
		case <-route.done:
			return
		case <-route.ch:
		}
		x.mu.Lock()
		for l := range route.subscribers {
			l.signals.raise(signo)
			_ = l.Wake()
		}
		x.mu.Unlock()
	}
}
