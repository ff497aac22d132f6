// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"strconv"
)

// Status codes produced by the server.
const (
	StatusOK                 = 200
	StatusBadRequest         = 400
	StatusNotFound           = 404
	StatusRequestTimeout     = 408
	StatusInternalError      = 500
	StatusServiceUnavailable = 503
)

// statusTable maps the supported codes to their status line suffix.
var statusTable = map[int]string{
	StatusOK:                 "200 OK",
	StatusBadRequest:         "400 Bad Request",
	StatusNotFound:           "404 Not Found",
	StatusRequestTimeout:     "408 Request Timeout",
	StatusInternalError:      "500 Internal Server Error",
	StatusServiceUnavailable: "503 Service Unavailable",
}

// StatusText returns the reason phrase for code, or "" if unsupported.
func StatusText(code int) string {
	if s, ok := statusTable[code]; ok {
		return s[4:]
	}
	return ""
}

const (
	headerContentType   = "Content-Type: text/plain; charset=utf-8\r\n"
	headerContentLength = "Content-Length: "
	headerConnection    = "Connection: close\r\n"
)

// Canned bodies for responses generated by the transport layer.
var (
	fallbackBody    = []byte("Hello World\n")
	badRequestBody  = []byte("400 Bad Request\n")
	timeoutBody     = []byte("408 Request Timeout\n")
	unavailableBody = []byte("503 Service Unavailable\n")
)

// buildResponse writes a complete response into dst, returning the number of
// bytes written. Every copy is bounded by dst, so the result is truncated
// (never overflows) if dst is too small. Unsupported codes are sent as 500.
// If omitBody is set the body is not written, though Content-Length still
// reflects it.
func buildResponse(dst, version []byte, code int, body []byte, omitBody bool) int {
	status, ok := statusTable[code]
	if !ok {
		status = statusTable[StatusInternalError]
	}
	if len(version) == 0 {
		version = defaultVersion
	}

	n := copy(dst, version)
	n += copy(dst[n:], " ")
	n += copy(dst[n:], status)
	n += copy(dst[n:], crlf)
	n += copy(dst[n:], headerContentType)
	n += copy(dst[n:], headerContentLength)
	var num [20]byte
	n += copy(dst[n:], strconv.AppendInt(num[:0], int64(len(body)), 10))
	n += copy(dst[n:], crlf)
	n += copy(dst[n:], headerConnection)
	n += copy(dst[n:], crlf)
	if !omitBody {
		n += copy(dst[n:], body)
	}
	return n
}

// UnavailableResponse returns a complete 503 response, suitable for
// WithRejectResponse.
func UnavailableResponse() []byte {
	b := make([]byte, WriteBufferSize)
	return b[:buildResponse(b, nil, StatusServiceUnavailable, unavailableBody, false)]
}
