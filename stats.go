// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"sync/atomic"
)

// Stats is a point in time snapshot of a loop's counters.
type Stats struct {
	// Rounds is the number of Pump calls.
	Rounds uint64
	// QueueDispatched is the number of thread queue entries dispatched,
	// including notifier activations.
	QueueDispatched uint64
	// TimersFired is the number of timer events delivered.
	TimersFired uint64
	// SignalsDispatched is the number of signal handler calls.
	SignalsDispatched uint64
	// NotifierActivations is the number of readiness reports enqueued.
	NotifierActivations uint64
	// JobsSettled is the number of jobs settled on the loop goroutine.
	JobsSettled uint64
	// CallbackPanics is the number of recovered callback panics.
	CallbackPanics uint64
	// BackendErrors is the number of failed backend waits.
	BackendErrors uint64
	// QueueLength is the number of entries in the thread queue.
	QueueLength int
	// PendingJobs is the number of tracked jobs, which may include jobs
	// settled since the last scavenge.
	PendingJobs int
}

// loopStats holds the counters behind Stats, which may be read from any
// goroutine.
type loopStats struct {
	rounds              atomic.Uint64
	queueDispatched     atomic.Uint64
	timersFired         atomic.Uint64
	signalsDispatched   atomic.Uint64
	notifierActivations atomic.Uint64
	jobsSettled         atomic.Uint64
	callbackPanics      atomic.Uint64
	backendErrors       atomic.Uint64
}

// Stats returns a snapshot of the loop's counters. It is safe to call from
// any goroutine.
func (l *EventLoop) Stats() Stats {
	return Stats{
		Rounds:              l.stats.rounds.Load(),
		QueueDispatched:     l.stats.queueDispatched.Load(),
		TimersFired:         l.stats.timersFired.Load(),
		SignalsDispatched:   l.stats.signalsDispatched.Load(),
		NotifierActivations: l.stats.notifierActivations.Load(),
		JobsSettled:         l.stats.jobsSettled.Load(),
		CallbackPanics:      l.stats.callbackPanics.Load(),
		BackendErrors:       l.stats.backendErrors.Load(),
		QueueLength:         l.thread.queue.Len(),
		PendingJobs:         l.jobs.len(),
	}
}
