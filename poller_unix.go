// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix && !linux

package weatherd

import (
	"time"

	"golang.org/x/sys/unix"
)

// Poller is the readiness multiplexer, using poll(2).
//
// It is not safe for concurrent use. Readiness reported by Wait is only used
// to bound how long a tick blocks: callers re-check their own descriptors.
type Poller struct {
	set     fdSet
	pollBuf [MaxFDs]unix.PollFd
	closed  bool
}

// NewPoller creates a poller. It holds no kernel resources.
func NewPoller() (*Poller, error) {
	return &Poller{}, nil
}

// Close releases the watch set. Watched descriptors are not closed.
func (p *Poller) Close() error {
	p.closed = true
	p.set = fdSet{}
	return nil
}

// Register starts watching fd. Registering a watched fd is a no-op.
func (p *Poller) Register(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	_, err := p.set.add(fd, events)
	return err
}

// Deregister stops watching fd.
func (p *Poller) Deregister(fd int) error {
	if p.closed {
		return ErrPollerClosed
	}
	return p.set.remove(fd)
}

// Modify updates the events being monitored for fd.
func (p *Poller) Modify(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	_, err := p.set.set(fd, events)
	return err
}

// Wait blocks until at least one watched fd is ready, or timeout elapses.
// It returns the number of ready descriptors, which is 0 on timeout or if
// interrupted by a signal.
func (p *Poller) Wait(timeout time.Duration) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	fds := p.pollBuf[:p.set.n]
	for i := range fds {
		e := p.set.entries[i]
		fds[i] = unix.PollFd{Fd: int32(e.fd), Events: eventsToPoll(e.events)}
	}
	n, err := unix.Poll(fds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func eventsToPoll(events IOEvents) int16 {
	var pollEvents int16
	if events&EventRead != 0 {
		pollEvents |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		pollEvents |= unix.POLLOUT
	}
	return pollEvents
}
