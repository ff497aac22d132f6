// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testServerConfig struct {
	app      Application
	fallback bool
	runtime  []RuntimeOption
	listener []ListenerOption
	http     []HTTPOption
	weather  []WeatherOption
}

// testServer drives a full stack from the test goroutine, one tick at a time.
type testServer struct {
	t       *testing.T
	rt      *Runtime
	metrics *Metrics
	http    *HTTPServer
	weather *WeatherServer
	ln      *Listener
}

func newTestServer(t *testing.T, cfg testServerConfig) *testServer {
	t.Helper()

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	rtOpts := append([]RuntimeOption{
		WithPollTimeout(5 * time.Millisecond),
		WithMetrics(metrics),
	}, cfg.runtime...)
	rt, err := NewRuntime(rtOpts...)
	require.NoError(t, err)

	s := &testServer{t: t, rt: rt, metrics: metrics}

	s.weather, err = NewWeatherServer(rt, cfg.weather...)
	require.NoError(t, err)

	app := cfg.app
	if app == nil && !cfg.fallback {
		app = s.weather
	}
	s.http, err = NewHTTPServer(rt, app, cfg.http...)
	require.NoError(t, err)

	s.ln, err = NewListener(rt, s.http, cfg.listener...)
	require.NoError(t, err)
	require.NoError(t, s.ln.Listen("127.0.0.1:0"))

	t.Cleanup(func() {
		assert.NoError(t, s.ln.Close())
		s.http.Shutdown()
		s.weather.Shutdown()
		assert.NoError(t, rt.Close())
	})
	return s
}

func (s *testServer) dial() net.Conn {
	s.t.Helper()
	conn, err := net.Dial("tcp", s.ln.Addr().String())
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) tickUntil(cond func() bool) {
	s.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			s.t.Fatal("timed out waiting for condition")
		}
		require.NoError(s.t, s.rt.Tick())
	}
}

// readAll ticks the server until conn reaches EOF, returning what was read.
func (s *testServer) readAll(conn net.Conn) string {
	s.t.Helper()
	var buf bytes.Buffer
	chunk := make([]byte, 1024)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(s.t, s.rt.Tick())
		_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := conn.Read(chunk)
		buf.Write(chunk[:n])
		switch {
		case errors.Is(err, io.EOF):
			return buf.String()
		case err != nil && !errors.Is(err, os.ErrDeadlineExceeded):
			s.t.Fatalf("read: %v", err)
		}
	}
	s.t.Fatal("timed out waiting for the server to close")
	return ""
}

func (s *testServer) do(request string) string {
	s.t.Helper()
	conn := s.dial()
	_, err := io.WriteString(conn, request)
	require.NoError(s.t, err)
	return s.readAll(conn)
}

func (s *testServer) rejected(reason string) float64 {
	return testutil.ToFloat64(s.metrics.rejected.WithLabelValues(reason))
}

func expectResponse(version string, status int, body string) string {
	return fmt.Sprintf("%s %d %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n%s", version, status, StatusText(status), len(body), body)
}

func TestServer_Weather(t *testing.T) {
	s := newTestServer(t, testServerConfig{})

	for _, tc := range []struct {
		name    string
		request string
		want    string
	}{
		{
			name:    "current",
			request: "GET /weather?city=Oslo HTTP/1.1\r\nHost: localhost\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusOK, "Current weather in Oslo: Sunny, 20°C\n"),
		},
		{
			name:    "forecast",
			request: "GET /forecast?city=New+York HTTP/1.0\r\n\r\n",
			want:    expectResponse("HTTP/1.0", StatusOK, "5-day forecast for New York: Mostly sunny, 18-22°C\n"),
		},
		{
			name:    "default city",
			request: "GET /weather HTTP/1.1\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusOK, "Current weather in Stockholm: Sunny, 20°C\n"),
		},
		{
			name:    "index",
			request: "GET / HTTP/1.1\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusOK, indexBody),
		},
		{
			name:    "unknown",
			request: "GET /unknown HTTP/1.1\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusNotFound, "404 Not Found\n\nUnknown endpoint: unknown\n"),
		},
		{
			name:    "bad method",
			request: "FOO / HTTP/1.1\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusBadRequest, "400 Bad Request\n"),
		},
		{
			name:    "bad version",
			request: "GET / HTTP/2.0\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusBadRequest, "400 Bad Request\n"),
		},
		{
			name:    "sanitized city",
			request: "GET /weather?city=%3Cb%3E HTTP/1.1\r\n\r\n",
			want:    expectResponse("HTTP/1.1", StatusOK, "Current weather in _b_: Sunny, 20°C\n"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.do(tc.request))
		})
	}

	assert.Zero(t, s.http.Active())
	assert.Zero(t, s.weather.Active())
	assert.Equal(t, 8.0, testutil.ToFloat64(s.metrics.accepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.responses.WithLabelValues("400")))
}

func TestServer_Head(t *testing.T) {
	s := newTestServer(t, testServerConfig{})
	body := "Current weather in Oslo: Sunny, 20°C\n"
	got := s.do("HEAD /weather?city=Oslo HTTP/1.1\r\n\r\n")
	assert.Equal(t, strings.TrimSuffix(expectResponse("HTTP/1.1", StatusOK, body), body), got)
}

func TestServer_Fallback(t *testing.T) {
	s := newTestServer(t, testServerConfig{fallback: true})
	assert.Equal(t,
		expectResponse("HTTP/1.1", StatusOK, "Hello World\n"),
		s.do("GET /anything HTTP/1.1\r\n\r\n"))
}

func TestServer_SplitTerminator(t *testing.T) {
	s := newTestServer(t, testServerConfig{})
	conn := s.dial()
	_, err := io.WriteString(conn, "GET /weather?city=Oslo HTTP/1.1\r\n\r")
	require.NoError(t, err)
	s.tickUntil(func() bool { return s.http.Conn(0).rlen > 0 })
	assert.Equal(t, ConnReading, s.http.Conn(0).State())

	_, err = io.WriteString(conn, "\n")
	require.NoError(t, err)
	assert.Equal(t,
		expectResponse("HTTP/1.1", StatusOK, "Current weather in Oslo: Sunny, 20°C\n"),
		s.readAll(conn))
}

func TestServer_RequestTooLarge(t *testing.T) {
	s := newTestServer(t, testServerConfig{})
	got := s.do("GET /" + strings.Repeat("a", ReadBufferSize-5))
	assert.Equal(t, expectResponse("HTTP/1.1", StatusBadRequest, "400 Bad Request\n"), got)
	assert.Zero(t, s.http.Active())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.responses.WithLabelValues("400")))
}

func TestServer_SlotResetAfterResponse(t *testing.T) {
	s := newTestServer(t, testServerConfig{})
	assert.Equal(t,
		expectResponse("HTTP/1.1", StatusOK, "Current weather in Oslo: Sunny, 20°C\n"),
		s.do("GET /weather?city=Oslo HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	c := s.http.Conn(0)
	assertIdleConn := func() {
		t.Helper()
		assert.Equal(t, ConnIdle, c.State())
		assert.Equal(t, -1, c.FD())
		assert.Zero(t, c.rlen)
		assert.Zero(t, c.wlen)
		assert.Zero(t, c.sent)
		assert.Equal(t, [ReadBufferSize]byte{}, c.rbuf)
		assert.Equal(t, [WriteBufferSize]byte{}, c.wbuf)
		assert.Equal(t, Request{}, c.req)
		assert.Nil(t, c.peer)
		assert.True(t, c.lastActive.IsZero())
		assert.False(t, s.rt.Scheduler().Active(c.item))
	}
	assertIdleConn()
	assert.Zero(t, s.http.Active())
	assert.Equal(t, s.http.Cap(), s.http.free.free())

	// cleanup is idempotent
	c.cleanup()
	assertIdleConn()
	assert.Zero(t, s.http.Active())
	assert.Equal(t, s.http.Cap(), s.http.free.free())
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.active.WithLabelValues(PoolHTTP)))

	w := s.weather.Conn(0)
	assert.Equal(t, WeatherIdle, w.State())
	assert.Empty(t, w.City())
	assert.Equal(t, [CitySize]byte{}, w.city)
	assert.Equal(t, [WeatherBodySize]byte{}, w.body)
	assert.Nil(t, w.sink)
	w.release()
	assert.Equal(t, s.weather.Cap(), s.weather.free.free())
	assert.Zero(t, s.weather.Active())
}

func TestServer_PeerClosed(t *testing.T) {
	s := newTestServer(t, testServerConfig{})
	conn := s.dial()
	s.tickUntil(func() bool { return s.http.Active() == 1 })
	require.NoError(t, conn.Close())
	s.tickUntil(func() bool { return s.http.Active() == 0 })
	assert.Equal(t, ConnIdle, s.http.Conn(0).State())
	assert.Equal(t, -1, s.http.Conn(0).FD())
}

func TestServer_IdleTimeout(t *testing.T) {
	s := newTestServer(t, testServerConfig{
		http: []HTTPOption{WithIdleTimeout(time.Minute)},
	})
	conn := s.dial()
	_, err := io.WriteString(conn, "GET /weather")
	require.NoError(t, err)
	s.tickUntil(func() bool { return s.http.Conn(0).rlen > 0 })

	now := time.Now().Add(2 * time.Minute)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	assert.Equal(t,
		expectResponse("HTTP/1.1", StatusRequestTimeout, "408 Request Timeout\n"),
		s.readAll(conn))
}

func TestServer_HTTPPoolExhausted(t *testing.T) {
	for _, tc := range []struct {
		name     string
		listener []ListenerOption
		want     string
	}{
		{name: "silent close"},
		{
			name:     "reject response",
			listener: []ListenerOption{WithRejectResponse(UnavailableResponse())},
			want:     expectResponse("HTTP/1.1", StatusServiceUnavailable, "503 Service Unavailable\n"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, testServerConfig{
				listener: tc.listener,
				http:     []HTTPOption{WithHTTPPoolSize(1)},
			})
			held := s.dial()
			s.tickUntil(func() bool { return s.http.Active() == 1 })

			assert.Equal(t, tc.want, s.readAll(s.dial()))
			assert.Equal(t, 1.0, s.rejected(RejectPoolExhausted))

			// the held connection is unaffected
			_, err := io.WriteString(held, "GET /weather?city=Oslo HTTP/1.1\r\n\r\n")
			require.NoError(t, err)
			assert.Equal(t,
				expectResponse("HTTP/1.1", StatusOK, "Current weather in Oslo: Sunny, 20°C\n"),
				s.readAll(held))
		})
	}
}

// exhaustedApp rejects every request, like a saturated weather pool.
type exhaustedApp struct{}

func (exhaustedApp) Dispatch(*Request, ResponseSink) (Exchange, error) {
	return nil, ErrPoolExhausted
}

type failingApp struct{ err error }

func (a failingApp) Dispatch(*Request, ResponseSink) (Exchange, error) {
	return nil, a.err
}

type panickingApp struct{}

func (panickingApp) Dispatch(*Request, ResponseSink) (Exchange, error) {
	panic("dispatch exploded")
}

// syncApp delivers before Dispatch returns.
type syncApp struct{}

func (syncApp) Dispatch(req *Request, sink ResponseSink) (Exchange, error) {
	sink.Deliver(StatusOK, append([]byte("sync "), req.Path()...))
	return nil, nil
}

func TestServer_ApplicationErrors(t *testing.T) {
	t.Run("pool exhausted", func(t *testing.T) {
		s := newTestServer(t, testServerConfig{app: exhaustedApp{}})
		assert.Equal(t,
			expectResponse("HTTP/1.1", StatusServiceUnavailable, "503 Service Unavailable\n"),
			s.do("GET /weather HTTP/1.1\r\n\r\n"))
	})

	t.Run("other error", func(t *testing.T) {
		s := newTestServer(t, testServerConfig{app: failingApp{errors.New("nope")}})
		assert.Equal(t,
			expectResponse("HTTP/1.1", StatusInternalError, ""),
			s.do("GET /weather HTTP/1.1\r\n\r\n"))
	})

	t.Run("synchronous deliver", func(t *testing.T) {
		s := newTestServer(t, testServerConfig{app: syncApp{}})
		assert.Equal(t,
			expectResponse("HTTP/1.1", StatusOK, "sync /x"),
			s.do("GET /x HTTP/1.1\r\n\r\n"))
	})

	t.Run("panic", func(t *testing.T) {
		var logs bytes.Buffer
		logger := stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(&logs)),
			stumpy.L.WithLevel(logiface.LevelDebug),
		).Logger()
		s := newTestServer(t, testServerConfig{
			app:     panickingApp{},
			runtime: []RuntimeOption{WithLogger(logger)},
		})
		assert.Empty(t, s.do("GET /weather HTTP/1.1\r\n\r\n"))
		assert.Zero(t, s.http.Active())
		assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.evictions.WithLabelValues("http")))
		assert.Contains(t, logs.String(), "work item evicted")
		assert.Contains(t, logs.String(), "dispatch exploded")

		// the slot is reusable
		assert.Empty(t, s.do("GET /weather HTTP/1.1\r\n\r\n"))
		assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.evictions.WithLabelValues("http")))
	})
}

// trickleIO writes at most max bytes per call, failing every other call
// with EAGAIN.
type trickleIO struct {
	unixIO
	max   int
	calls int
}

func (x *trickleIO) Write(fd int, p []byte) (int, error) {
	x.calls++
	if x.calls%2 == 0 {
		return 0, unix.EAGAIN
	}
	return x.unixIO.Write(fd, p[:min(len(p), x.max)])
}

func TestServer_PartialWrites(t *testing.T) {
	tio := &trickleIO{max: 7}
	s := newTestServer(t, testServerConfig{
		runtime: []RuntimeOption{WithFDIO(tio)},
	})
	assert.Equal(t,
		expectResponse("HTTP/1.1", StatusOK, indexBody),
		s.do("GET / HTTP/1.1\r\n\r\n"))
	assert.Greater(t, tio.calls, 20)
}

func TestServer_AcceptRateLimit(t *testing.T) {
	s := newTestServer(t, testServerConfig{
		listener: []ListenerOption{WithAcceptRateLimit(map[time.Duration]int{time.Minute: 1})},
	})
	assert.NotEmpty(t, s.do("GET / HTTP/1.1\r\n\r\n"))
	assert.Empty(t, s.do("GET / HTTP/1.1\r\n\r\n"))
	assert.Equal(t, 1.0, s.rejected(RejectRateLimited))
}

func TestServer_WeatherPoolSaturated(t *testing.T) {
	s := newTestServer(t, testServerConfig{
		weather: []WeatherOption{WithWeatherPoolSize(1)},
	})
	a, b := s.dial(), s.dial()
	s.tickUntil(func() bool { return s.http.Active() == 2 })

	// both requests complete their reads in the same tick, so only one of
	// them gets the single weather slot
	for _, conn := range []net.Conn{a, b} {
		_, err := io.WriteString(conn, "GET /weather?city=Oslo HTTP/1.1\r\n\r\n")
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)

	got := []string{s.readAll(a), s.readAll(b)}
	assert.ElementsMatch(t, []string{
		expectResponse("HTTP/1.1", StatusOK, "Current weather in Oslo: Sunny, 20°C\n"),
		expectResponse("HTTP/1.1", StatusServiceUnavailable, "503 Service Unavailable\n"),
	}, got)
}
