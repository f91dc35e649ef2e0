// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"fmt"
)

// Notifier watches a file descriptor for readiness, on the loop it is
// registered with. Activations are delivered through the thread event queue,
// as a [NotifierActivationEvent], which the Notifier handles by calling its
// activation callback.
//
// A Notifier must be constructed with [NewNotifier], and is only ever
// touched by the goroutine that owns its loop.
type Notifier struct {
	onActivation func(events IOEvents)
	// loop is set while registered
	loop     *EventLoop
	fd       int
	interest IOEvents
	// generation is bumped on each registration
	generation uint64
}

var _ EventReceiver = (*Notifier)(nil)

// NewNotifier returns an unregistered Notifier for fd. The interest must
// include EventRead and/or EventWrite. The onActivation callback receives the
// events reported by the backend, and may be nil.
func NewNotifier(fd int, interest IOEvents, onActivation func(events IOEvents)) *Notifier {
	return &Notifier{
		onActivation: onActivation,
		fd:           fd,
		interest:     interest,
	}
}

// FD returns the watched descriptor.
func (n *Notifier) FD() int { return n.fd }

// Interest returns the events the notifier watches for.
func (n *Notifier) Interest() IOEvents { return n.interest }

// Enabled reports whether the notifier is registered with a loop.
func (n *Notifier) Enabled() bool { return n.loop != nil }

// SetEnabled registers the notifier with the current loop of the calling
// goroutine, or unregisters it. Enabling an enabled notifier, or disabling
// a disabled one, is a no-op.
func (n *Notifier) SetEnabled(enabled bool) error {
	if enabled == n.Enabled() {
		return nil
	}
	if enabled {
		return RegisterNotifier(n)
	}
	UnregisterNotifier(n)
	return nil
}

// HandleEvent implements EventReceiver. Activations that arrive after the
// notifier was disabled are dropped, including those reported under an
// earlier registration of a notifier that has since been re-enabled.
func (n *Notifier) HandleEvent(ev Event) {
	activation, ok := ev.(*NotifierActivationEvent)
	if !ok || activation.Notifier != n || n.loop == nil || activation.generation != n.generation {
		return
	}
	if n.onActivation != nil {
		n.onActivation(activation.Events)
	}
}

// HandleTimer implements EventReceiver.
func (n *Notifier) HandleTimer(*TimerEvent) {}

func (n *Notifier) validate() error {
	if n.fd < 0 {
		return fmt.Errorf("%w: negative descriptor %d", ErrInvalidNotifier, n.fd)
	}
	if n.interest&(EventRead|EventWrite) == 0 {
		return fmt.Errorf("%w: no read or write interest", ErrInvalidNotifier)
	}
	return nil
}

// notifierRegistry owns the notifiers of one loop, keyed by descriptor.
type notifierRegistry struct {
	byFD map[int]*Notifier
}

func newNotifierRegistry() *notifierRegistry {
	return &notifierRegistry{byFD: make(map[int]*Notifier)}
}

func (r *notifierRegistry) len() int { return len(r.byFD) }

// lookup returns the registered notifier for fd, if any.
func (r *notifierRegistry) lookup(fd int) *Notifier {
	return r.byFD[fd]
}

// clear detaches every notifier, without touching the backend.
func (r *notifierRegistry) clear() {
	for fd, n := range r.byFD {
		n.loop = nil
		delete(r.byFD, fd)
	}
}

// RegisterNotifier registers n with the current loop of the calling
// goroutine. A descriptor may be registered at most once per loop, and a
// notifier with at most one loop, otherwise ErrNotifierAlreadyRegistered is
// returned. It panics with a *UsageError if the goroutine has no loop.
func RegisterNotifier(n *Notifier) error {
	l := currentFor("RegisterNotifier")
	if n == nil {
		usageViolation("RegisterNotifier", "nil notifier")
	}
	if err := n.validate(); err != nil {
		return err
	}
	if n.loop != nil {
		return ErrNotifierAlreadyRegistered
	}
	if _, ok := l.notifiers.byFD[n.fd]; ok {
		return ErrNotifierAlreadyRegistered
	}
	if err := l.backend.Watch(n.fd, n.interest); err != nil {
		return fmt.Errorf("reactor: watch fd %d: %w", n.fd, err)
	}
	l.notifiers.byFD[n.fd] = n
	n.loop = l
	n.generation++
	l.log.debug(logCategoryNotifier).
		Int("fd", n.fd).
		Uint64("interest", uint64(n.interest)).
		Log("notifier registered")
	return nil
}

// UnregisterNotifier unregisters n from the current loop of the calling
// goroutine. Notifiers not registered with that loop are ignored. It panics
// with a *UsageError if the goroutine has no loop.
func UnregisterNotifier(n *Notifier) {
	l := currentFor("UnregisterNotifier")
	if n == nil || n.loop != l || l.notifiers.byFD[n.fd] != n {
		return
	}
	delete(l.notifiers.byFD, n.fd)
	n.loop = nil
	if err := l.backend.Unwatch(n.fd); err != nil {
		l.log.rateLimitedErr(logCategoryNotifier).
			Int("fd", n.fd).
			Err(err).
			Log("failed to unwatch descriptor")
		return
	}
	l.log.debug(logCategoryNotifier).
		Int("fd", n.fd).
		Log("notifier unregistered")
}
