// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultRoundBudget is the default maximum number of thread queue
	// entries dispatched by a single drain.
	DefaultRoundBudget = 1024

	defaultRetryMin = time.Millisecond
	defaultRetryMax = time.Second
)

// loopOptions holds configuration options for EventLoop creation.
type loopOptions struct {
	logger      *logiface.Logger[logiface.Event]
	backend     func() (Backend, error)
	roundBudget int
	retryMin    time.Duration
	retryMax    time.Duration
}

// LoopOption configures an EventLoop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger used by the loop.
// A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBackend replaces the platform backend. The factory is called once, by
// New, and the loop takes exclusive ownership of the returned Backend,
// closing it on Close.
func WithBackend(factory func() (Backend, error)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if factory == nil {
			return fmt.Errorf("reactor: nil backend factory")
		}
		opts.backend = factory
		return nil
	}}
}

// WithRoundBudget sets the maximum number of thread queue entries a single
// drain dispatches. Entries beyond the budget, including those enqueued by
// the entries being dispatched, are left for the next round.
func WithRoundBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return fmt.Errorf("reactor: invalid round budget: %d", n)
		}
		opts.roundBudget = n
		return nil
	}}
}

// WithBackendRetry configures the exponential backoff applied after a
// failed backend wait. The delay starts at minDelay, doubles per
// consecutive failure, and is capped at maxDelay.
func WithBackendRetry(minDelay, maxDelay time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if minDelay <= 0 || maxDelay < minDelay {
			return fmt.Errorf("reactor: invalid backend retry range: %v..%v", minDelay, maxDelay)
		}
		opts.retryMin = minDelay
		opts.retryMax = maxDelay
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		backend:     newPlatformBackend,
		roundBudget: DefaultRoundBudget,
		retryMin:    defaultRetryMin,
		retryMax:    defaultRetryMax,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
