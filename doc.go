// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package weatherd implements a small weather API server on a single-threaded,
// non-blocking event loop.
//
// # Architecture
//
// A [Runtime] pairs a cooperative [Scheduler] with a readiness [Poller]. Each
// tick blocks until a watched descriptor is ready (or the poll timeout
// elapses), then runs every registered work item exactly once. Work items
// never block: they attempt I/O, and give up until the next tick on EAGAIN.
//
// Three components run as work items:
//
//   - [Listener] accepts TCP connections, handing them to an [AcceptHandler].
//   - [HTTPServer] is a fixed pool of [HTTPConn] slots. Each reads a request,
//     parses its request line, dispatches it to an [Application], and writes
//     the response before closing the connection.
//   - [WeatherServer] is a fixed pool of [WeatherConn] slots, implementing
//     [Application] by rendering a response through a [Responder].
//
// Neither pool allocates per request. When a pool is full, the listener
// closes new connections (optionally writing a 503 first, see
// [WithRejectResponse]), and the HTTP layer answers 503 to requests the
// weather pool has no room for.
//
// # Concurrency
//
// Everything except [Runtime.Wake] must be called from the goroutine running
// the loop.
//
// # Platform
//
// The server requires a unix platform. On Linux the poller uses epoll,
// elsewhere poll(2). The total number of watched descriptors is bounded by
// [MaxFDs].
package weatherd
