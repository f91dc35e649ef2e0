// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"time"
)

// IOEvents represents the type of I/O events to monitor, or that occurred.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Readiness reports the events that occurred on a watched descriptor.
type Readiness struct {
	FD     int
	Events IOEvents
}

// WaitResult reports why [Backend.Wait] returned. More than one condition
// may hold, and none may hold (a spurious return).
type WaitResult struct {
	// Ready lists descriptors that became ready. It is only valid until the
	// next call to Wait.
	Ready []Readiness
	// Woken is true if Wake was called since the previous Wait.
	Woken bool
	// TimedOut is true if the timeout elapsed.
	TimedOut bool
}

// Backend is the OS readiness multiplexer behind an [EventLoop], plus its
// cross-goroutine wake channel.
//
// Wake must be safe to call from any goroutine, at any time, including
// after Close (in which case it fails harmlessly). All other methods are
// only called by the loop's owner.
type Backend interface {
	// Watch starts monitoring fd for the given events.
	Watch(fd int, interest IOEvents) error
	// Unwatch stops monitoring fd.
	Unwatch(fd int) error
	// Wait blocks until a watched descriptor is ready, the timeout elapses,
	// or Wake is called. A negative timeout waits indefinitely, and a zero
	// timeout polls without blocking.
	Wait(timeout time.Duration) (WaitResult, error)
	// Wake unblocks a concurrent or subsequent Wait.
	Wake() error
	// Close releases the backend's resources.
	Close() error
}

// timeoutToMillis converts a Wait timeout to the millisecond form used by
// epoll_wait and poll, rounding up partial milliseconds so that a timer is
// never observed as early.
func timeoutToMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout == 0 {
		return 0
	}
	const maxMillis = 1<<31 - 1
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > maxMillis {
		return maxMillis
	}
	return int(ms)
}
