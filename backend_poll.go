// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix && !linux

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend implements Backend using poll(2), with a self-pipe as the wake
// channel.
type pollBackend struct {
	watched map[int]IOEvents
	// pollFds[0] is always the read end of the wake pipe
	pollFds     []unix.PollFd
	ready       []Readiness
	closeMu     sync.RWMutex
	wakeRead    int
	wakeWrite   int
	wakePending atomic.Uint32
	dirty       bool
	closed      bool
}

var _ Backend = (*pollBackend)(nil)

func newPlatformBackend() (Backend, error) {
	return newPollBackend()
}

func newPollBackend() (*pollBackend, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}

	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	}

	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	if err := unix.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return nil, err
	}

	return &pollBackend{
		watched:   make(map[int]IOEvents),
		wakeRead:  fds[0],
		wakeWrite: fds[1],
		dirty:     true,
	}, nil
}

func (b *pollBackend) Watch(fd int, interest IOEvents) error {
	if b.closed {
		return ErrBackendClosed
	}
	if _, ok := b.watched[fd]; ok {
		return ErrNotifierAlreadyRegistered
	}
	b.watched[fd] = interest
	b.dirty = true
	return nil
}

func (b *pollBackend) Unwatch(fd int) error {
	if b.closed {
		return ErrBackendClosed
	}
	if _, ok := b.watched[fd]; ok {
		delete(b.watched, fd)
		b.dirty = true
	}
	return nil
}

// rebuild regenerates pollFds from watched.
func (b *pollBackend) rebuild() {
	b.pollFds = append(b.pollFds[:0], unix.PollFd{Fd: int32(b.wakeRead), Events: unix.POLLIN})
	for fd, interest := range b.watched {
		var events int16
		if interest&EventRead != 0 {
			events |= unix.POLLIN
		}
		if interest&EventWrite != 0 {
			events |= unix.POLLOUT
		}
		b.pollFds = append(b.pollFds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	b.dirty = false
}

func (b *pollBackend) Wait(timeout time.Duration) (WaitResult, error) {
	if b.closed {
		return WaitResult{}, ErrBackendClosed
	}
	if b.dirty {
		b.rebuild()
	}
	for i := range b.pollFds {
		b.pollFds[i].Revents = 0
	}

	n, err := unix.Poll(b.pollFds, timeoutToMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return WaitResult{}, nil
		}
		return WaitResult{}, err
	}

	result := WaitResult{TimedOut: n == 0 && timeout != 0}
	b.ready = b.ready[:0]
	if n == 0 {
		result.Ready = b.ready
		return result, nil
	}

	if b.pollFds[0].Revents&unix.POLLIN != 0 {
		b.drainWakePipe()
		result.Woken = true
	}
	for _, pfd := range b.pollFds[1:] {
		if pfd.Revents == 0 {
			continue
		}
		var events IOEvents
		if pfd.Revents&unix.POLLIN != 0 {
			events |= EventRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			events |= EventWrite
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			events |= EventError
		}
		if pfd.Revents&unix.POLLHUP != 0 {
			events |= EventHangup
		}
		b.ready = append(b.ready, Readiness{FD: int(pfd.Fd), Events: events})
	}
	result.Ready = b.ready
	return result, nil
}

func (b *pollBackend) drainWakePipe() {
	var buf [64]byte
	for {
		if _, err := unix.Read(b.wakeRead, buf[:]); err != nil {
			break
		}
	}
	b.wakePending.Store(0)
}

func (b *pollBackend) Wake() error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrBackendClosed
	}

	if !b.wakePending.CompareAndSwap(0, 1) {
		return nil
	}

	buf := [1]byte{1}
	for {
		_, err := unix.Write(b.wakeWrite, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN: the pipe is full, which is still readable
			return nil
		case unix.EINTR:
			continue
		default:
			b.wakePending.Store(0)
			return err
		}
	}
}

func (b *pollBackend) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	b.closed = true
	err := unix.Close(b.wakeRead)
	if err2 := unix.Close(b.wakeWrite); err == nil {
		err = err2
	}
	return err
}
