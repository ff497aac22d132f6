// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"errors"
	"fmt"
	"net"

	catrate "github.com/joeycumines/go-catrate"
	"golang.org/x/sys/unix"
)

// AcceptHandler takes ownership of accepted, non-blocking connections.
//
// On error the descriptor remains owned by the caller, which closes it.
type AcceptHandler interface {
	Accept(fd int) error
}

// Listener accepts TCP connections on behalf of an [AcceptHandler], as a
// work item of a [Runtime].
type Listener struct {
	rt             *Runtime
	handler        AcceptHandler
	logger         *Logger
	limiter        *catrate.Limiter
	addr           net.Addr
	rejectResponse []byte
	backlog        int
	fd             int
	item           Handle
	state          ListenerState
}

// NewListener creates a listener in the ListenerInit state. A nil handler
// is permitted, in which case every connection is closed as it is accepted.
func NewListener(rt *Runtime, handler AcceptHandler, opts ...ListenerOption) (*Listener, error) {
	cfg, err := resolveListenerOptions(opts)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		rt:             rt,
		handler:        handler,
		logger:         componentLogger(rt.logger, "listener"),
		rejectResponse: cfg.rejectResponse,
		backlog:        cfg.backlog,
		fd:             -1,
	}
	if len(cfg.acceptRates) != 0 {
		l.limiter = catrate.NewLimiter(cfg.acceptRates)
	}
	l.item = rt.sched.NewItem("listener", l.step)
	return l, nil
}

// State returns the listener's current state.
func (l *Listener) State() ListenerState { return l.state }

// Addr returns the bound address, or nil unless listening.
func (l *Listener) Addr() net.Addr {
	if l.state != ListenerListening {
		return nil
	}
	return l.addr
}

// Listen binds and listens on addr ("host:port"), then registers with the
// runtime. On failure the listener moves to ListenerError.
func (l *Listener) Listen(addr string) error {
	if l.state != ListenerInit {
		return ErrListenerState
	}
	if err := l.listen(addr); err != nil {
		l.state = ListenerError
		l.logger.Err().
			Str("addr", addr).
			Err(err).
			Log("listen failed")
		return fmt.Errorf("weatherd: listen %s: %w", addr, err)
	}
	l.state = ListenerListening
	l.logger.Info().
		Str("addr", l.addr.String()).
		Log("listening")
	return nil
}

func (l *Listener) listen(addr string) error {
	sa, domain, err := resolveSockaddr(addr)
	if err != nil {
		return err
	}
	fd, err := listenSocket(sa, domain, l.backlog)
	if err != nil {
		return err
	}
	if bound, err := unix.Getsockname(fd); err == nil {
		if tcpAddr := sockaddrTCP(bound); tcpAddr != nil {
			l.addr = tcpAddr
		}
	}
	if l.addr == nil {
		l.addr = sockaddrTCP(sa)
	}
	if err := l.rt.poller.Register(fd, EventRead); err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := l.rt.sched.Register(l.item); err != nil {
		_ = l.rt.poller.Deregister(fd)
		_ = unix.Close(fd)
		return err
	}
	l.fd = fd
	return nil
}

// step drains the accept queue.
func (l *Listener) step() error {
	if l.state != ListenerListening {
		return nil
	}
	for {
		nfd, sa, err := acceptSocket(l.fd)
		if err != nil {
			switch {
			case wouldBlock(err):
			case interrupted(err), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				l.logger.Err().
					Err(err).
					Log("accept failed")
			}
			return nil
		}
		l.dispatch(nfd, sa)
	}
}

func (l *Listener) dispatch(fd int, sa unix.Sockaddr) {
	if l.limiter != nil {
		if _, ok := l.limiter.Allow(peerHost(sa)); !ok {
			l.rt.metrics.rejectedConn(RejectRateLimited)
			l.logger.Debug().
				Str("peer", peerHost(sa)).
				Log("connection rate limited")
			_ = l.rt.io.Close(fd)
			return
		}
	}

	if l.handler == nil {
		l.rt.metrics.rejectedConn(RejectNoHandler)
		_ = l.rt.io.Close(fd)
		return
	}

	if err := l.handler.Accept(fd); err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			l.rt.metrics.rejectedConn(RejectPoolExhausted)
			if len(l.rejectResponse) != 0 {
				// single attempt, a short write is not retried
				_, _ = l.rt.io.Write(fd, l.rejectResponse)
			}
			l.logger.Warning().
				Str("peer", peerHost(sa)).
				Log("connection pool exhausted")
		} else {
			l.rt.metrics.rejectedConn(RejectError)
			l.logger.Err().
				Str("peer", peerHost(sa)).
				Err(err).
				Log("accept handler failed")
		}
		_ = l.rt.io.Close(fd)
		return
	}

	l.rt.metrics.acceptedConn()
}

// Close stops listening, moving to ListenerDone. It is idempotent.
func (l *Listener) Close() error {
	if l.state == ListenerDone {
		return nil
	}
	var errs []error
	if l.fd >= 0 {
		if err := l.rt.poller.Deregister(l.fd); err != nil && !errors.Is(err, ErrPollerClosed) {
			errs = append(errs, err)
		}
		errs = append(errs, unix.Close(l.fd))
		l.fd = -1
	}
	if l.rt.sched.Active(l.item) {
		errs = append(errs, l.rt.sched.Deregister(l.item))
	}
	l.state = ListenerDone
	l.logger.Info().Log("listener closed")
	return errors.Join(errs...)
}
