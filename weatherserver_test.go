// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordingSink struct {
	calls  int
	status int
	body   string
}

func (s *recordingSink) Deliver(status int, body []byte) {
	s.calls++
	s.status = status
	s.body = string(body)
}

func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt, err := NewRuntime(append([]RuntimeOption{WithPollTimeout(time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })
	return rt
}

func mustParse(t *testing.T, line string) *Request {
	t.Helper()
	var req Request
	require.NoError(t, parseRequestLine([]byte(line+"\r\n\r\n"), &req))
	return &req
}

func TestWeatherServer_Dispatch(t *testing.T) {
	rt := newTestRuntime(t)
	ws, err := NewWeatherServer(rt, WithWeatherPoolSize(1))
	require.NoError(t, err)

	var sink recordingSink
	ex, err := ws.Dispatch(mustParse(t, "GET /forecast?city=Bergen HTTP/1.1"), &sink)
	require.NoError(t, err)
	c := ex.(*WeatherConn)
	assert.Equal(t, WeatherProcessing, c.State())
	assert.Equal(t, RouteForecast, c.Route())
	assert.Equal(t, "Bergen", string(c.City()))
	assert.Equal(t, 1, ws.Active())
	assert.True(t, rt.Scheduler().Pending())

	var other recordingSink
	_, err = ws.Dispatch(mustParse(t, "GET /weather HTTP/1.1"), &other)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, rt.Tick())
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, StatusOK, sink.status)
	assert.Equal(t, "5-day forecast for Bergen: Mostly sunny, 18-22°C\n", sink.body)
	assert.Equal(t, WeatherDone, c.State())

	require.NoError(t, rt.Tick())
	assert.Equal(t, WeatherIdle, c.State())
	assert.Zero(t, ws.Active())
	assert.Empty(t, c.City())
	assert.Equal(t, 1, sink.calls)
	assert.Zero(t, other.calls)

	// the slot is reusable
	_, err = ws.Dispatch(mustParse(t, "GET /weather HTTP/1.1"), &other)
	require.NoError(t, err)
}

func TestWeatherServer_DefaultCity(t *testing.T) {
	rt := newTestRuntime(t)
	ws, err := NewWeatherServer(rt, WithDefaultCity("Rio de Janeiro!"))
	require.NoError(t, err)

	for _, line := range []string{
		"GET /weather HTTP/1.1",
		"GET /weather?units=c HTTP/1.1",
		"GET /weather?city= HTTP/1.1",
	} {
		ex, err := ws.Dispatch(mustParse(t, line), &recordingSink{})
		require.NoError(t, err)
		assert.Equal(t, "Rio de Janeiro_", string(ex.(*WeatherConn).City()), line)
	}
	assert.Equal(t, 3, ws.Active())
	ws.Shutdown()
	assert.Zero(t, ws.Active())
}

func TestWeatherServer_Detach(t *testing.T) {
	rt := newTestRuntime(t)
	ws, err := NewWeatherServer(rt)
	require.NoError(t, err)

	var sink recordingSink
	ex, err := ws.Dispatch(mustParse(t, "GET /weather HTTP/1.1"), &sink)
	require.NoError(t, err)
	ex.Detach()

	require.NoError(t, rt.Tick())
	require.NoError(t, rt.Tick())
	assert.Zero(t, sink.calls)
	assert.Zero(t, ws.Active())
}

func TestWeatherServer_Responder(t *testing.T) {
	for _, tc := range []struct {
		name      string
		responder ResponderFunc
		status    int
		body      string
	}{
		{
			name: "custom",
			responder: func(dst []byte, route Route, city []byte) (int, int) {
				return 201, copy(dst, route.String()+":"+string(city))
			},
			status: 201,
			body:   "current:Oslo",
		},
		{
			name: "panic",
			responder: func([]byte, Route, []byte) (int, int) {
				panic("responder exploded")
			},
			status: StatusInternalError,
		},
		{
			name: "negative length",
			responder: func([]byte, Route, []byte) (int, int) {
				return StatusOK, -10
			},
			status: StatusOK,
		},
		{
			name: "overlong length",
			responder: func(dst []byte, _ Route, _ []byte) (int, int) {
				for i := range dst {
					dst[i] = 'x'
				}
				return StatusOK, len(dst) + 1
			},
			status: StatusOK,
			body:   strings.Repeat("x", WeatherBodySize),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			ws, err := NewWeatherServer(rt, WithResponder(tc.responder))
			require.NoError(t, err)

			var sink recordingSink
			_, err = ws.Dispatch(mustParse(t, "GET /weather?city=Oslo HTTP/1.1"), &sink)
			require.NoError(t, err)
			require.NoError(t, rt.Tick())
			assert.Equal(t, 1, sink.calls)
			assert.Equal(t, tc.status, sink.status)
			assert.Equal(t, tc.body, sink.body)
		})
	}
}

// panickingSink fails the weather work item from within Deliver.
type panickingSink struct{ calls int }

func (s *panickingSink) Deliver(int, []byte) {
	s.calls++
	panic("deliver exploded")
}

func TestWeatherServer_Evicted(t *testing.T) {
	rt := newTestRuntime(t)
	ws, err := NewWeatherServer(rt, WithWeatherPoolSize(1))
	require.NoError(t, err)

	var sink panickingSink
	_, err = ws.Dispatch(mustParse(t, "GET /weather HTTP/1.1"), &sink)
	require.NoError(t, err)
	require.NoError(t, rt.Tick())

	// delivered once, then released by the evict hook
	assert.Equal(t, 1, sink.calls)
	assert.Zero(t, ws.Active())
	assert.Equal(t, WeatherIdle, ws.Conn(0).State())
}

func TestHTTPServer_Accept(t *testing.T) {
	rt := newTestRuntime(t)
	hs, err := NewHTTPServer(rt, nil, WithHTTPPoolSize(1))
	require.NoError(t, err)
	assert.Equal(t, 1, hs.Cap())

	// ownership of a passes to the server
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	a := fds[0]
	require.NoError(t, hs.Accept(a))
	assert.Equal(t, ConnReading, hs.Conn(0).State())
	assert.Equal(t, a, hs.Conn(0).FD())

	b, _ := newTestPipe(t)
	assert.ErrorIs(t, hs.Accept(b), ErrPoolExhausted)
	assert.Equal(t, 1, hs.Active())

	hs.Shutdown()
	assert.Zero(t, hs.Active())
	assert.Equal(t, ConnIdle, hs.Conn(0).State())
	assert.Equal(t, 1, rt.Poller().Len(), "only the wake descriptor remains")
}

func TestHTTPServer_Accept_InvalidFD(t *testing.T) {
	rt := newTestRuntime(t)
	hs, err := NewHTTPServer(rt, nil, WithHTTPPoolSize(2))
	require.NoError(t, err)

	assert.ErrorIs(t, hs.Accept(-1), ErrFDOutOfRange)
	assert.Zero(t, hs.Active())
	assert.Equal(t, 2, hs.free.free(), "slot returned on failure")
}
