// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor provides a single-threaded, cooperative event loop: the
// primitive that parks its owner until something interesting happens (a
// timer fires, a file descriptor becomes ready, a signal arrives, another
// goroutine schedules work) and then dispatches that work in a
// deterministic order.
//
// # Ownership
//
// An [EventLoop] belongs to the goroutine that constructed it. [New] pins
// that goroutine to its OS thread and pushes the loop onto the goroutine's
// loop stack; [EventLoop.Close] pops it again. The top of the stack is the
// "current" loop, see [Current]. Constructing a second loop while the first
// is executing, then calling [EventLoop.Exec] on it, is how nested (modal)
// loops are expressed:
//
//	outer, _ := reactor.New()
//
//	outer.DeferredInvoke(func() {
//	    inner, _ := reactor.New()
//	    defer inner.Close()
//	    inner.DeferredInvoke(func() { inner.Quit(7) })
//	    _ = inner.Exec() // 7
//	    outer.Quit(0)
//	})
//
//	code := outer.Exec()
//	_ = outer.Close()
//	os.Exit(code)
//
// Using any owner-only operation from another goroutine, or with no loop on
// the calling goroutine, is a programming error, and panics with a
// [*UsageError].
//
// # Event sources
//
// Each pump round ([EventLoop.Pump]) processes, in order:
//  1. The thread event queue: posted events ([EventLoop.PostEvent]) and
//     deferred closures ([EventLoop.DeferredInvoke]), as one interleaved
//     FIFO, drained to empty up to a per-round budget.
//  2. Timers ([RegisterTimer]) whose deadline has elapsed, earliest first.
//  3. Signals ([RegisterSignal]) that arrived since the previous round.
//  4. The [Backend] wait, which blocks (in [WaitForEvents] mode, and only
//     when nothing else was found) until a descriptor registered through a
//     [Notifier] becomes ready, the nearest timer is due, or
//     [EventLoop.Wake] is called.
//
// # Thread Safety
//
// Only [EventLoop.PostEvent], [EventLoop.DeferredInvoke], [EventLoop.Wake],
// [EventLoop.Quit], and [Promise] completion may be called from goroutines
// other than the owner. Everything else is confined to the owner.
//
// # Platform Support
//
// The default backend uses epoll and eventfd on Linux, and poll(2) with a
// self-pipe on other unix platforms. A custom [Backend] may be supplied via
// [WithBackend].
package reactor
