// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"errors"
	"fmt"
)

// Scheduler errors.
var (
	// ErrNilWork is returned when registering a work item without a function.
	ErrNilWork = errors.New("weatherd: work item has no function")

	// ErrItemActive is returned by Scheduler.Register for an item that is
	// already linked.
	ErrItemActive = errors.New("weatherd: work item already active")

	// ErrItemNotFound is returned by Scheduler.Deregister for an item that is
	// not linked.
	ErrItemNotFound = errors.New("weatherd: work item not found")

	// ErrInvalidHandle is returned for a Handle that was not issued by the
	// scheduler.
	ErrInvalidHandle = errors.New("weatherd: invalid work item handle")
)

// Poller errors.
var (
	ErrFDOutOfRange    = errors.New("weatherd: fd out of range")
	ErrFDLimit         = errors.New("weatherd: fd limit reached")
	ErrFDNotRegistered = errors.New("weatherd: fd not registered")
	ErrPollerClosed    = errors.New("weatherd: poller closed")
)

// Runtime and listener errors.
var (
	// ErrRuntimeClosed is returned when operating on a closed Runtime.
	ErrRuntimeClosed = errors.New("weatherd: runtime closed")

	// ErrListenerState is returned by Listener.Listen unless the listener is
	// in its initial state.
	ErrListenerState = errors.New("weatherd: listener not in init state")
)

// Pool errors.
var (
	// ErrPoolExhausted is returned when a connection pool has no free slot.
	ErrPoolExhausted = errors.New("weatherd: connection pool exhausted")
)

// Request parsing errors. All of them result in a 400 response.
var (
	ErrMalformedRequest   = errors.New("weatherd: malformed request line")
	ErrMethodNotAllowed   = errors.New("weatherd: method not allowed")
	ErrVersionUnsupported = errors.New("weatherd: unsupported protocol version")
	ErrFieldTooLong       = errors.New("weatherd: request field too long")
	ErrRequestTooLarge    = errors.New("weatherd: request exceeds read buffer")
)

// PanicError wraps a value recovered from a panicking work item.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("weatherd: work item panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, for use with
// [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
