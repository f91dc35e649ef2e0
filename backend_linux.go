// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package reactor

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend implements Backend using epoll, with an eventfd as the wake
// channel.
type epollBackend struct {
	watched  map[int]IOEvents
	ready    []Readiness
	eventBuf [256]unix.EpollEvent
	// closeMu guards the descriptors against Close racing Wake
	closeMu     sync.RWMutex
	epfd        int
	wakeFd      int
	wakePending atomic.Uint32
	closed      bool
}

var _ Backend = (*epollBackend)(nil)

func newPlatformBackend() (Backend, error) {
	return newEpollBackend()
}

func newEpollBackend() (*epollBackend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return &epollBackend{
		watched: make(map[int]IOEvents),
		epfd:    epfd,
		wakeFd:  wakeFd,
	}, nil
}

func (b *epollBackend) Watch(fd int, interest IOEvents) error {
	if b.closed {
		return ErrBackendClosed
	}
	if _, ok := b.watched[fd]; ok {
		return ErrNotifierAlreadyRegistered
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	b.watched[fd] = interest
	return nil
}

func (b *epollBackend) Unwatch(fd int) error {
	if b.closed {
		return ErrBackendClosed
	}
	if _, ok := b.watched[fd]; !ok {
		return nil
	}
	delete(b.watched, fd)
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		// already closed by the caller, which drops it from the epoll set
		return nil
	}
	return err
}

func (b *epollBackend) Wait(timeout time.Duration) (WaitResult, error) {
	if b.closed {
		return WaitResult{}, ErrBackendClosed
	}

	n, err := unix.EpollWait(b.epfd, b.eventBuf[:], timeoutToMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return WaitResult{}, nil
		}
		return WaitResult{}, err
	}

	result := WaitResult{TimedOut: n == 0 && timeout != 0}
	b.ready = b.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Fd)
		if fd == b.wakeFd {
			b.drainWakeFd()
			result.Woken = true
			continue
		}
		if _, ok := b.watched[fd]; !ok {
			continue
		}
		b.ready = append(b.ready, Readiness{FD: fd, Events: epollToEvents(b.eventBuf[i].Events)})
	}
	result.Ready = b.ready
	return result, nil
}

// drainWakeFd resets the eventfd counter.
func (b *epollBackend) drainWakeFd() {
	var buf [8]byte
	for {
		if _, err := unix.Read(b.wakeFd, buf[:]); err != nil {
			break
		}
	}
	b.wakePending.Store(0)
}

func (b *epollBackend) Wake() error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrBackendClosed
	}

	if !b.wakePending.CompareAndSwap(0, 1) {
		return nil
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(b.wakeFd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN: the counter is saturated, which is still readable
			return nil
		case unix.EINTR:
			continue
		default:
			b.wakePending.Store(0)
			return err
		}
	}
}

func (b *epollBackend) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	b.closed = true
	err := unix.Close(b.epfd)
	if err2 := unix.Close(b.wakeFd); err == nil {
		err = err2
	}
	return err
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	if events&EventHangup != 0 {
		epollEvents |= unix.EPOLLRDHUP
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}
