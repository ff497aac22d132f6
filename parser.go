// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"bytes"
)

// Buffer and field sizes. Field sizes are capacities: the longest accepted
// value is one byte shorter.
const (
	ReadBufferSize  = 2048
	WriteBufferSize = 4096
	MethodSize      = 16
	PathSize        = 256
	QuerySize       = 256
	VersionSize     = 16
)

var (
	headerTerminator = []byte("\r\n\r\n")
	crlf             = []byte("\r\n")
	defaultVersion   = []byte("HTTP/1.1")
)

// allowedMethods is the method allow-list.
var allowedMethods = [...][]byte{
	[]byte("GET"),
	[]byte("POST"),
	[]byte("PUT"),
	[]byte("DELETE"),
	[]byte("HEAD"),
	[]byte("OPTIONS"),
	[]byte("PATCH"),
}

var allowedVersions = [...][]byte{
	[]byte("HTTP/1.0"),
	[]byte("HTTP/1.1"),
}

// span is a region of a connection's read buffer.
type span struct {
	off, n uint16
}

func (s span) of(buf []byte) []byte {
	return buf[s.off : s.off+s.n : s.off+s.n]
}

// Request is a parsed request line. Its fields reference the owning
// connection's read buffer, and are only valid until the connection sends
// its response.
type Request struct {
	buf      []byte
	method   span
	path     span
	query    span
	version  span
	hasQuery bool
}

// Method returns the request method, e.g. "GET".
func (r *Request) Method() []byte { return r.method.of(r.buf) }

// Path returns the request path, without the query.
func (r *Request) Path() []byte { return r.path.of(r.buf) }

// Query returns the raw query, without the leading '?'. It is empty if the
// request target had none.
func (r *Request) Query() []byte { return r.query.of(r.buf) }

// HasQuery reports whether the request target contained a '?'.
func (r *Request) HasQuery() bool { return r.hasQuery }

// Version returns the protocol version, e.g. "HTTP/1.1".
func (r *Request) Version() []byte { return r.version.of(r.buf) }

// IsHead reports whether this is a HEAD request.
func (r *Request) IsHead() bool { return string(r.Method()) == "HEAD" }

func (r *Request) reset() { *r = Request{} }

// headerEnd returns the offset just past the header terminator, or -1.
func headerEnd(buf []byte) int {
	i := bytes.Index(buf, headerTerminator)
	if i < 0 {
		return -1
	}
	return i + len(headerTerminator)
}

// parseRequestLine parses the first line of buf into req. Headers are not
// examined. Any error means the request must be answered with a 400.
func parseRequestLine(buf []byte, req *Request) error {
	req.reset()

	end := bytes.Index(buf, crlf)
	if end < 0 {
		return ErrMalformedRequest
	}
	line := buf[:end]

	// method
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return ErrMalformedRequest
	}
	if sp >= MethodSize {
		return ErrFieldTooLong
	}
	if !oneOf(line[:sp], allowedMethods[:]) {
		return ErrMethodNotAllowed
	}
	method := span{0, uint16(sp)}
	crs := sp + 1

	// request target
	sp = bytes.IndexByte(line[crs:], ' ')
	if sp <= 0 {
		return ErrMalformedRequest
	}
	target := line[crs : crs+sp]
	if target[0] != '/' {
		return ErrMalformedRequest
	}
	pathLen, queryOff, queryLen := len(target), 0, 0
	hasQuery := false
	if q := bytes.IndexByte(target, '?'); q >= 0 {
		pathLen = q
		queryOff = q + 1
		queryLen = len(target) - queryOff
		hasQuery = true
	}
	if pathLen >= PathSize || queryLen >= QuerySize {
		return ErrFieldTooLong
	}
	path := span{uint16(crs), uint16(pathLen)}
	query := span{uint16(crs + queryOff), uint16(queryLen)}
	crs += sp + 1

	// version, the remainder of the line
	version := line[crs:]
	if len(version) >= VersionSize {
		return ErrFieldTooLong
	}
	if !oneOf(version, allowedVersions[:]) {
		return ErrVersionUnsupported
	}

	*req = Request{
		buf:      buf,
		method:   method,
		path:     path,
		query:    query,
		version:  span{uint16(crs), uint16(len(version))},
		hasQuery: hasQuery,
	}
	return nil
}

func oneOf(b []byte, set [][]byte) bool {
	for _, v := range set {
		if bytes.Equal(b, v) {
			return true
		}
	}
	return false
}
