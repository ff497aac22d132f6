// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

// WeatherConn is a request slot of a [WeatherServer]. It implements
// [Exchange].
type WeatherConn struct {
	city    [CitySize]byte
	body    [WeatherBodySize]byte
	server  *WeatherServer
	sink    ResponseSink
	cityLen int
	bodyLen int
	status  int
	index   int
	item    Handle
	route   Route
	state   WeatherState
}

var _ Exchange = (*WeatherConn)(nil)

// State returns the slot's current state.
func (c *WeatherConn) State() WeatherState { return c.state }

// Route returns the classified route of the current request.
func (c *WeatherConn) Route() Route { return c.route }

// City returns the sanitized city of the current request.
func (c *WeatherConn) City() []byte { return c.city[:c.cityLen] }

// Detach implements Exchange.
func (c *WeatherConn) Detach() {
	c.sink = nil
}

func (c *WeatherConn) step() error {
	switch c.state {
	case WeatherProcessing:
		c.status, c.bodyLen = c.respond()
		if c.sink != nil {
			sink := c.sink
			c.sink = nil
			sink.Deliver(c.status, c.body[:c.bodyLen])
		} else {
			c.server.logger.Debug().
				Int("slot", c.index).
				Log("response discarded")
		}
		c.state = WeatherDone
		c.server.rt.sched.Notify()
	case WeatherDone:
		c.release()
	}
	return nil
}

// respond calls the Responder, clamping its result.
func (c *WeatherConn) respond() (int, int) {
	var status, n int
	err := safeCall(func() error {
		status, n = c.server.responder.Respond(c.body[:], c.route, c.City())
		return nil
	})
	if err != nil {
		c.server.logger.Err().
			Str("route", c.route.String()).
			Err(err).
			Log("responder failed")
		return StatusInternalError, 0
	}
	if n < 0 {
		n = 0
	} else if n > len(c.body) {
		n = len(c.body)
	}
	return status, n
}

// evicted answers with a 500 if the request is still pending, then releases
// the slot.
func (c *WeatherConn) evicted(error) {
	if c.sink != nil {
		sink := c.sink
		c.sink = nil
		sink.Deliver(StatusInternalError, nil)
	}
	c.release()
}

// release returns the slot to the free list. It is idempotent.
func (c *WeatherConn) release() {
	s := c.server
	if s.rt.sched.Active(c.item) {
		_ = s.rt.sched.Deregister(c.item)
	}
	c.reset()
	if s.free.release(c.index) {
		s.released()
	}
}

func (c *WeatherConn) reset() {
	c.sink = nil
	clear(c.city[:c.cityLen])
	clear(c.body[:c.bodyLen])
	c.cityLen, c.bodyLen, c.status = 0, 0, 0
	c.route = RouteUnknown
	c.state = WeatherIdle
}
