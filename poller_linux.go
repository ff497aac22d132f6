// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package weatherd

import (
	"time"

	"golang.org/x/sys/unix"
)

// Poller is the readiness multiplexer, using epoll (Linux).
//
// It is not safe for concurrent use. Readiness reported by Wait is only used
// to bound how long a tick blocks: callers re-check their own descriptors.
type Poller struct {
	set      fdSet
	eventBuf [MaxFDs]unix.EpollEvent
	epfd     int
	closed   bool
}

// NewPoller creates the epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: epfd}, nil
}

// Close closes the epoll instance. Watched descriptors are not closed.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.set = fdSet{}
	return unix.Close(p.epfd)
}

// Register starts watching fd. Registering a watched fd is a no-op.
func (p *Poller) Register(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	added, err := p.set.add(fd, events)
	if err != nil || !added {
		return err
	}
	ev := unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_ = p.set.remove(fd) // rollback
		return err
	}
	return nil
}

// Deregister stops watching fd.
func (p *Poller) Deregister(fd int) error {
	if p.closed {
		return ErrPollerClosed
	}
	if err := p.set.remove(fd); err != nil {
		return err
	}
	// the fd may have been closed already, which removes it from the epoll set
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.EBADF && err != unix.ENOENT {
		return err
	}
	return nil
}

// Modify updates the events being monitored for fd.
func (p *Poller) Modify(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	prev, err := p.set.set(fd, events)
	if err != nil || prev == events {
		return err
	}
	ev := unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		_, _ = p.set.set(fd, prev)
		return err
	}
	return nil
}

// Wait blocks until at least one watched fd is ready, or timeout elapses.
// It returns the number of ready descriptors, which is 0 on timeout or if
// interrupted by a signal.
func (p *Poller) Wait(timeout time.Duration) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
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
	return epollEvents
}
