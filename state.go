// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

// ListenerState is the state of a [Listener].
//
//	ListenerInit → ListenerListening   [Listen()]
//	ListenerInit → ListenerError       [Listen() failed]
//	ListenerListening → ListenerDone   [Close()]
type ListenerState uint8

const (
	ListenerInit ListenerState = iota
	ListenerListening
	ListenerError
	ListenerDone
)

func (s ListenerState) String() string {
	switch s {
	case ListenerInit:
		return "Init"
	case ListenerListening:
		return "Listening"
	case ListenerError:
		return "Error"
	case ListenerDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ConnState is the state of an [HTTPConn] slot.
//
//	ConnIdle → ConnReading        [HTTPServer.Accept]
//	ConnReading → ConnParsing     [end of headers seen]
//	ConnParsing → ConnProcessing  [request line valid]
//	ConnParsing → ConnSending     [400]
//	ConnProcessing → ConnWaiting  [dispatched to the application]
//	ConnProcessing → ConnSending  [503, or fallback response]
//	ConnWaiting → ConnSending     [ResponseSink.Deliver]
//	ConnSending → ConnIdle        [response fully written]
//	any → ConnIdle                [abort, via cleanup]
type ConnState uint8

const (
	ConnIdle ConnState = iota
	ConnReading
	ConnParsing
	ConnProcessing
	ConnWaiting
	ConnSending
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "Idle"
	case ConnReading:
		return "Reading"
	case ConnParsing:
		return "Parsing"
	case ConnProcessing:
		return "Processing"
	case ConnWaiting:
		return "Waiting"
	case ConnSending:
		return "Sending"
	default:
		return "Unknown"
	}
}

// WeatherState is the state of a [WeatherConn] slot.
type WeatherState uint8

const (
	WeatherIdle WeatherState = iota
	WeatherProcessing
	WeatherDone
)

func (s WeatherState) String() string {
	switch s {
	case WeatherIdle:
		return "Idle"
	case WeatherProcessing:
		return "Processing"
	case WeatherDone:
		return "Done"
	default:
		return "Unknown"
	}
}
