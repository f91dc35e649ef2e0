// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopClosed is returned when operations are attempted on a loop that
	// has been closed, and is used to reject jobs still pending at close.
	ErrLoopClosed = errors.New("reactor: loop has been closed")

	// ErrNotifierAlreadyRegistered is returned when a descriptor is already
	// watched by another notifier on the same loop.
	ErrNotifierAlreadyRegistered = errors.New("reactor: descriptor already registered")

	// ErrInvalidNotifier is returned by RegisterNotifier for a notifier with
	// a negative descriptor, or without read or write interest.
	ErrInvalidNotifier = errors.New("reactor: invalid notifier")

	// ErrInvalidSignal is returned by RegisterSignal for signal numbers the
	// platform cannot deliver.
	ErrInvalidSignal = errors.New("reactor: invalid signal number")

	// ErrBackendClosed is returned by backends after Close.
	ErrBackendClosed = errors.New("reactor: backend closed")

	// ErrGoexit is used to reject a job whose goroutine exited via
	// runtime.Goexit.
	ErrGoexit = errors.New("reactor: job goroutine exited via runtime.Goexit")
)

// UsageError is the panic value for programming errors, e.g. calling an
// owner-only operation from another goroutine, or registering a timer with
// no loop on the calling goroutine. It is never returned as an error, and
// is never recovered by the loop.
type UsageError struct {
	// Op is the operation that was misused, e.g. "RegisterTimer".
	Op string
	// Reason describes the violated invariant.
	Reason string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return fmt.Sprintf("reactor: %s: %s", e.Op, e.Reason)
}

// usageViolation panics with a *UsageError.
func usageViolation(op, reason string) {
	panic(&UsageError{Op: op, Reason: reason})
}

// PanicError wraps a value recovered from a panicking job.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("reactor: job panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, enabling [errors.Is]
// and [errors.As] through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
