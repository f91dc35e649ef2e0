// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Log categories, emitted as the "category" field.
const (
	logCategoryLoop     = "loop"
	logCategoryQueue    = "queue"
	logCategoryTimer    = "timer"
	logCategoryNotifier = "notifier"
	logCategorySignal   = "signal"
	logCategoryJob      = "job"
	logCategoryBackend  = "backend"
	logCategoryCallback = "callback"
)

// errorLogRates bounds how often the same category of error is logged,
// e.g. a backend failing every round.
var errorLogRates = map[time.Duration]int{
	time.Second: 4,
	time.Minute: 30,
}

// loopLogger wraps the configured logiface logger. All methods are nil-safe,
// as the logiface builders are.
type loopLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	loopID  uint64
}

func newLoopLogger(logger *logiface.Logger[logiface.Event], loopID uint64) *loopLogger {
	x := &loopLogger{logger: logger, loopID: loopID}
	if logger != nil {
		x.limiter = catrate.NewLimiter(errorLogRates)
	}
	return x
}

// debug starts a debug level entry, returning nil if disabled.
func (x *loopLogger) debug(category string) *logiface.Builder[logiface.Event] {
	return x.logger.Debug().
		Str("category", category).
		Uint64("loop", x.loopID)
}

// warning starts a warning level entry, returning nil if disabled.
func (x *loopLogger) warning(category string) *logiface.Builder[logiface.Event] {
	return x.logger.Warning().
		Str("category", category).
		Uint64("loop", x.loopID)
}

// rateLimitedErr starts an error level entry, unless the category has
// exceeded errorLogRates, in which case it returns nil.
func (x *loopLogger) rateLimitedErr(category string) *logiface.Builder[logiface.Event] {
	if x.logger == nil {
		return nil
	}
	if _, ok := x.limiter.Allow(category); !ok {
		return nil
	}
	return x.logger.Err().
		Str("category", category).
		Uint64("loop", x.loopID)
}
