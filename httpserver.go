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
	"time"
)

// ResponseSink receives the response for a dispatched request.
type ResponseSink interface {
	// Deliver queues a response, which is copied, for sending. It has no
	// effect unless the sink is waiting for a response.
	Deliver(status int, body []byte)
}

// Exchange is the application's side of a dispatched request.
type Exchange interface {
	// Detach drops the application's reference to its ResponseSink, so that
	// no response is delivered. It is called when the connection aborts
	// before a response was delivered.
	Detach()
}

// Application handles parsed requests.
//
// Dispatch must not block. It either returns an Exchange, and later calls
// sink.Deliver exactly once unless detached, or returns an error. An error
// matching ErrPoolExhausted results in a 503 response, any other a 500.
type Application interface {
	Dispatch(req *Request, sink ResponseSink) (Exchange, error)
}

// HTTPServer is a fixed-size pool of HTTP connection slots. It implements
// [AcceptHandler].
type HTTPServer struct {
	rt          *Runtime
	app         Application
	logger      *Logger
	conns       []HTTPConn
	free        freeList
	idleTimeout time.Duration
	active      int
}

var _ AcceptHandler = (*HTTPServer)(nil)

// NewHTTPServer creates the pool. If app is nil every parsed request is
// answered with a fixed 200 response.
func NewHTTPServer(rt *Runtime, app Application, opts ...HTTPOption) (*HTTPServer, error) {
	cfg, err := resolveHTTPOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &HTTPServer{
		rt:          rt,
		app:         app,
		logger:      componentLogger(rt.logger, "http"),
		conns:       make([]HTTPConn, cfg.poolSize),
		free:        newFreeList(cfg.poolSize),
		idleTimeout: cfg.idleTimeout,
	}
	for i := range s.conns {
		c := &s.conns[i]
		c.server = s
		c.index = i
		c.fd = -1
		c.item = rt.sched.NewItem("http", c.step)
		_ = rt.sched.OnEvict(c.item, c.evicted)
	}
	return s, nil
}

// Accept takes ownership of fd, which must be a connected, non-blocking
// socket. On error, ownership remains with the caller.
func (s *HTTPServer) Accept(fd int) error {
	i := s.free.alloc()
	if i < 0 {
		return ErrPoolExhausted
	}
	c := &s.conns[i]

	if err := s.rt.poller.Register(fd, EventRead); err != nil {
		s.free.release(i)
		if errors.Is(err, ErrFDLimit) {
			return fmt.Errorf("%w: %w", ErrPoolExhausted, err)
		}
		return err
	}
	if err := s.rt.sched.Register(c.item); err != nil {
		_ = s.rt.poller.Deregister(fd)
		s.free.release(i)
		return err
	}

	c.fd = fd
	c.state = ConnReading
	c.lastActive = timeNow()
	s.active++
	s.rt.metrics.setActive(PoolHTTP, s.active)

	s.logger.Debug().
		Int("fd", fd).
		Int("slot", i).
		Log("connection accepted")

	return nil
}

// Active returns the number of in-use slots.
func (s *HTTPServer) Active() int { return s.active }

// Cap returns the number of slots.
func (s *HTTPServer) Cap() int { return len(s.conns) }

// Conn returns slot i, for inspection.
func (s *HTTPServer) Conn(i int) *HTTPConn { return &s.conns[i] }

// Shutdown aborts every in-use connection, without sending anything.
func (s *HTTPServer) Shutdown() {
	for i := range s.conns {
		if s.free.inUse[i] {
			s.conns[i].cleanup()
		}
	}
}

func (s *HTTPServer) released() {
	if s.active > 0 {
		s.active--
	}
	s.rt.metrics.setActive(PoolHTTP, s.active)
}
