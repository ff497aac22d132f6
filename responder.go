// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

// WeatherBodySize is the capacity of a weather response body.
const WeatherBodySize = 1024

// Responder produces the weather response for a route. It writes the body
// into dst, and returns the status code and the number of bytes written,
// which must not exceed len(dst). It must not block, or retain dst or city.
type Responder interface {
	Respond(dst []byte, route Route, city []byte) (status, n int)
}

// ResponderFunc is an adapter to allow the use of ordinary functions as
// a [Responder].
type ResponderFunc func(dst []byte, route Route, city []byte) (status, n int)

// Respond implements Responder.
func (f ResponderFunc) Respond(dst []byte, route Route, city []byte) (int, int) {
	return f(dst, route, city)
}

// TemplateResponder is the built-in, static weather data source.
type TemplateResponder struct{}

var _ Responder = TemplateResponder{}

const (
	currentPrefix  = "Current weather in "
	currentSuffix  = ": Sunny, 20°C\n"
	forecastPrefix = "5-day forecast for "
	forecastSuffix = ": Mostly sunny, 18-22°C\n"
	indexBody      = "Weather API\n\nAvailable endpoints:\n  /weather?city=NAME - Current weather\n  /forecast?city=NAME - 5-day forecast\n"
	unknownBody    = "404 Not Found\n\nUnknown endpoint: unknown\n"
)

// Respond implements Responder.
func (TemplateResponder) Respond(dst []byte, route Route, city []byte) (int, int) {
	var n int
	switch route {
	case RouteCurrent:
		n = copy(dst, currentPrefix)
		n += copy(dst[n:], city)
		n += copy(dst[n:], currentSuffix)
	case RouteForecast:
		n = copy(dst, forecastPrefix)
		n += copy(dst[n:], city)
		n += copy(dst[n:], forecastSuffix)
	case RouteIndex:
		n = copy(dst, indexBody)
	default:
		return StatusNotFound, copy(dst, unknownBody)
	}
	return StatusOK, n
}
