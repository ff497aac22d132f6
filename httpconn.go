// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"errors"
	"time"
)

// for testing purposes
var timeNow = time.Now

// HTTPConn is a connection slot of an [HTTPServer]. It implements
// [ResponseSink] for the request it is serving.
type HTTPConn struct {
	rbuf       [ReadBufferSize]byte
	wbuf       [WriteBufferSize]byte
	lastActive time.Time
	server     *HTTPServer
	peer       Exchange
	req        Request
	fd         int
	index      int
	rlen       int
	wlen       int
	sent       int
	item       Handle
	state      ConnState
}

var _ ResponseSink = (*HTTPConn)(nil)

// State returns the slot's current state.
func (c *HTTPConn) State() ConnState { return c.state }

// FD returns the slot's descriptor, or -1 if idle.
func (c *HTTPConn) FD() int { return c.fd }

// step is the slot's work item. States that need no I/O fall through to the
// next within the same call.
func (c *HTTPConn) step() error {
	for {
		var next bool
		switch c.state {
		case ConnReading:
			next = c.onReading()
		case ConnParsing:
			next = c.onParsing()
		case ConnProcessing:
			next = c.onProcessing()
		case ConnSending:
			next = c.onSending()
		default:
			// ConnWaiting is passive, see Deliver
			return nil
		}
		if !next {
			return nil
		}
	}
}

func (c *HTTPConn) onReading() bool {
	s := c.server
	if c.rlen == len(c.rbuf) {
		c.tooLarge()
		return true
	}

	n, err := s.rt.io.Read(c.fd, c.rbuf[c.rlen:])
	if err != nil {
		switch {
		case wouldBlock(err):
			if s.idleTimeout > 0 && timeNow().Sub(c.lastActive) >= s.idleTimeout {
				s.logger.Debug().
					Int("fd", c.fd).
					Dur("idle", s.idleTimeout).
					Log("idle timeout")
				c.respond(StatusRequestTimeout, timeoutBody)
				return true
			}
			return false
		case interrupted(err):
			return true
		default:
			c.abort("read failed", err)
			return false
		}
	}
	if n == 0 {
		// peer closed, not a failure
		s.logger.Debug().
			Int("fd", c.fd).
			Log("peer closed")
		c.cleanup()
		return false
	}

	// the terminator may straddle the previous read
	from := max(c.rlen-len(headerTerminator)+1, 0)
	c.rlen += n
	c.lastActive = timeNow()

	if headerEnd(c.rbuf[from:c.rlen]) >= 0 {
		c.state = ConnParsing
		return true
	}
	if c.rlen == len(c.rbuf) {
		c.tooLarge()
	}
	return true
}

// tooLarge answers a request whose head does not fit the read buffer.
func (c *HTTPConn) tooLarge() {
	c.server.logger.Debug().
		Int("fd", c.fd).
		Int("bytes", c.rlen).
		Err(ErrRequestTooLarge).
		Log("bad request")
	c.respond(StatusBadRequest, badRequestBody)
}

func (c *HTTPConn) onParsing() bool {
	if err := parseRequestLine(c.rbuf[:c.rlen], &c.req); err != nil {
		c.server.logger.Debug().
			Int("fd", c.fd).
			Err(err).
			Log("bad request")
		c.respond(StatusBadRequest, badRequestBody)
		return true
	}
	c.state = ConnProcessing
	return true
}

func (c *HTTPConn) onProcessing() bool {
	s := c.server
	if s.app == nil {
		c.respond(StatusOK, fallbackBody)
		return true
	}

	// Deliver may be called before Dispatch returns
	c.state = ConnWaiting
	ex, err := s.app.Dispatch(&c.req, c)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			s.logger.Warning().
				Int("fd", c.fd).
				Log("application pool exhausted")
			c.respond(StatusServiceUnavailable, unavailableBody)
		} else {
			s.logger.Err().
				Int("fd", c.fd).
				Err(err).
				Log("dispatch failed")
			c.respond(StatusInternalError, nil)
		}
		return true
	}
	if c.state != ConnWaiting {
		return true
	}
	c.peer = ex
	// no interest in further input while the response is pending
	_ = s.rt.poller.Modify(c.fd, 0)
	return false
}

// Deliver implements ResponseSink.
func (c *HTTPConn) Deliver(status int, body []byte) {
	if c.state != ConnWaiting {
		return
	}
	c.peer = nil
	c.respond(status, body)
	c.server.rt.sched.Notify()
}

func (c *HTTPConn) onSending() bool {
	s := c.server
	n, err := s.rt.io.Write(c.fd, c.wbuf[c.sent:c.wlen])
	if err != nil {
		switch {
		case wouldBlock(err):
			c.wantWrite()
			return false
		case interrupted(err):
			return true
		default:
			c.abort("write failed", err)
			return false
		}
	}
	c.sent += n
	if c.sent >= c.wlen {
		s.logger.Debug().
			Int("fd", c.fd).
			Int("bytes", c.wlen).
			Log("response sent")
		c.cleanup()
		return false
	}
	c.wantWrite()
	return false
}

func (c *HTTPConn) wantWrite() {
	if err := c.server.rt.poller.Modify(c.fd, EventWrite); err != nil {
		c.server.logger.Warning().
			Int("fd", c.fd).
			Err(err).
			Log("modify interest failed")
	}
}

// respond builds the response into the write buffer, and moves to
// ConnSending.
func (c *HTTPConn) respond(status int, body []byte) {
	c.wlen = buildResponse(c.wbuf[:], c.req.Version(), status, body, c.req.IsHead())
	c.sent = 0
	c.state = ConnSending
	c.server.rt.metrics.response(status)
}

func (c *HTTPConn) abort(msg string, err error) {
	c.server.logger.Warning().
		Int("fd", c.fd).
		Str("state", c.state.String()).
		Err(err).
		Log(msg)
	c.cleanup()
}

// evicted releases a slot whose work item failed.
func (c *HTTPConn) evicted(error) {
	c.cleanup()
}

// cleanup releases the slot. It is idempotent.
func (c *HTTPConn) cleanup() {
	s := c.server
	if c.peer != nil {
		c.peer.Detach()
		c.peer = nil
	}
	if c.fd >= 0 {
		_ = s.rt.poller.Deregister(c.fd)
		_ = s.rt.io.Close(c.fd)
		c.fd = -1
	}
	if s.rt.sched.Active(c.item) {
		_ = s.rt.sched.Deregister(c.item)
	}
	clear(c.rbuf[:c.rlen])
	clear(c.wbuf[:c.wlen])
	c.rlen, c.wlen, c.sent = 0, 0, 0
	c.req.reset()
	c.lastActive = time.Time{}
	c.state = ConnIdle
	if s.free.release(c.index) {
		s.released()
	}
}
