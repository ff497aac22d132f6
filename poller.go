// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"math"
	"time"
)

// MaxFDs is the maximum number of descriptors a [Poller] will watch.
const MaxFDs = 64

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// fdEntry is a watched descriptor and its interest.
type fdEntry struct {
	fd     int
	events IOEvents
}

// fdSet is the bounded, unordered set of watched descriptors shared by the
// platform pollers. Removal swaps the last entry into the hole.
type fdSet struct {
	entries [MaxFDs]fdEntry
	n       int
}

func (s *fdSet) index(fd int) int {
	for i := 0; i < s.n; i++ {
		if s.entries[i].fd == fd {
			return i
		}
	}
	return -1
}

// add reports false (with no error) if fd was already present.
func (s *fdSet) add(fd int, events IOEvents) (bool, error) {
	if fd < 0 {
		return false, ErrFDOutOfRange
	}
	if s.index(fd) >= 0 {
		return false, nil
	}
	if s.n == len(s.entries) {
		return false, ErrFDLimit
	}
	s.entries[s.n] = fdEntry{fd: fd, events: events}
	s.n++
	return true, nil
}

func (s *fdSet) remove(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	i := s.index(fd)
	if i < 0 {
		return ErrFDNotRegistered
	}
	s.n--
	s.entries[i] = s.entries[s.n]
	s.entries[s.n] = fdEntry{}
	return nil
}

// set returns the previous interest.
func (s *fdSet) set(fd int, events IOEvents) (IOEvents, error) {
	if fd < 0 {
		return 0, ErrFDOutOfRange
	}
	i := s.index(fd)
	if i < 0 {
		return 0, ErrFDNotRegistered
	}
	prev := s.entries[i].events
	s.entries[i].events = events
	return prev, nil
}

// Len returns the number of watched descriptors.
func (p *Poller) Len() int {
	return p.set.n
}

// timeoutMillis converts d for epoll_wait / poll. Sub-millisecond positive
// durations round up, so a short timeout never degrades into a busy loop.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}
