// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"sync/atomic"
)

// LoopState represents the lifecycle state of an [EventLoop].
//
// State Machine:
//
//	StateConstructed → StateRunning        [Exec()]
//	StateConstructed → StateExitRequested  [Quit()]
//	StateRunning     → StateExitRequested  [Quit()]
//	*                → StateDestroyed      [Close()]
//	StateDestroyed   → (terminal)
//
// A loop whose Exec is suspended, because a nested loop was pushed on top of
// it and is executing, remains in StateRunning.
type LoopState uint32

const (
	// StateConstructed indicates the loop exists but Exec has not been called.
	StateConstructed LoopState = iota
	// StateRunning indicates Exec is active.
	StateRunning
	// StateExitRequested indicates Quit has been called.
	StateExitRequested
	// StateDestroyed indicates the loop has been closed.
	StateDestroyed
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateConstructed:
		return "Constructed"
	case StateRunning:
		return "Running"
	case StateExitRequested:
		return "ExitRequested"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state holder.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store is only valid for StateDestroyed, which is irreversible.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts to transition from any of validFrom to the target.
func (s *loopState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}
