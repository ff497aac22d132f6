// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"bytes"
)

// CitySize is the capacity of a city buffer. Cities are truncated to one byte
// less.
const CitySize = 64

// Route classifies a request path.
type Route uint8

const (
	RouteUnknown Route = iota
	RouteCurrent
	RouteForecast
	RouteIndex
)

func (r Route) String() string {
	switch r {
	case RouteCurrent:
		return "current"
	case RouteForecast:
		return "forecast"
	case RouteIndex:
		return "index"
	default:
		return "unknown"
	}
}

// classifyRoute matches path exactly.
func classifyRoute(path []byte) Route {
	switch string(path) {
	case "/weather":
		return RouteCurrent
	case "/forecast":
		return RouteForecast
	case "/":
		return RouteIndex
	default:
		return RouteUnknown
	}
}

var cityKey = []byte("city")

// extractCity finds the first "city" parameter of query, then decodes and
// sanitizes it into dst. It returns the number of bytes written, which is 0
// if the parameter is absent or empty.
func extractCity(dst, query []byte) int {
	for len(query) != 0 {
		var pair []byte
		if i := bytes.IndexByte(query, '&'); i >= 0 {
			pair, query = query[:i], query[i+1:]
		} else {
			pair, query = query, nil
		}
		key, value, _ := bytes.Cut(pair, []byte{'='})
		if bytes.Equal(key, cityKey) {
			return decodeCity(dst, value)
		}
	}
	return 0
}

// decodeCity percent-decodes src ('+' is a space) into dst, keeping only
// letters, digits, space, '_' and '-', replacing anything else with '_'.
// Output is capped at len(dst)-1 bytes. Malformed escapes are copied as-is,
// so the '%' becomes '_'.
func decodeCity(dst, src []byte) int {
	limit := len(dst) - 1
	var n int
	for i := 0; i < len(src) && n < limit; i++ {
		b := src[i]
		switch b {
		case '+':
			b = ' '
		case '%':
			if i+2 < len(src) && isHex(src[i+1]) && isHex(src[i+2]) {
				b = unhex(src[i+1])<<4 | unhex(src[i+2])
				i += 2
			}
		}
		dst[n] = sanitizeCityByte(b)
		n++
	}
	return n
}

// sanitizeCity copies src into dst, sanitized but not decoded.
func sanitizeCity(dst, src []byte) int {
	n := min(len(src), len(dst)-1)
	for i := 0; i < n; i++ {
		dst[i] = sanitizeCityByte(src[i])
	}
	return n
}

func sanitizeCityByte(b byte) byte {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return b
	case b == ' ', b == '_', b == '-':
		return b
	default:
		return '_'
	}
}

func isHex(b byte) bool {
	return '0' <= b && b <= '9' || 'a' <= b && b <= 'f' || 'A' <= b && b <= 'F'
}

func unhex(b byte) byte {
	switch {
	case '0' <= b && b <= '9':
		return b - '0'
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}
