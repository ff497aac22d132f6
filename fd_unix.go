// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"errors"

	"golang.org/x/sys/unix"
)

// FDIO is the raw, non-blocking descriptor I/O used by the listener and the
// connection pools. Errors are returned as-is, in particular unix.EAGAIN.
type FDIO interface {
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Close(fd int) error
}

// unixIO implements FDIO on Unix systems.
type unixIO struct{}

func (unixIO) Read(fd int, p []byte) (int, error)  { return unix.Read(fd, p) }
func (unixIO) Write(fd int, p []byte) (int, error) { return unix.Write(fd, p) }
func (unixIO) Close(fd int) error                  { return unix.Close(fd) }

// wouldBlock reports whether err is the non-blocking "try again" condition.
func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// interrupted reports whether err is EINTR.
func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
