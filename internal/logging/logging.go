// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package logging builds the process logger, a logiface facade over one of
// several backends.
package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

// Format selects the log backend.
type Format string

const (
	// FormatJSON writes one JSON object per line, using stumpy.
	FormatJSON Format = "json"
	// FormatConsole writes human-readable lines, using zerolog's ConsoleWriter.
	FormatConsole Format = "console"
	// FormatText writes logfmt-style lines, using logrus' TextFormatter.
	FormatText Format = "text"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatConsole, FormatText}

var (
	ErrUnknownLevel  = errors.New("logging: unknown level")
	ErrUnknownFormat = errors.New("logging: unknown format")
)

// levels are the names accepted by ParseLevel.
var levels = map[string]logiface.Level{
	"trace":   logiface.LevelTrace,
	"debug":   logiface.LevelDebug,
	"info":    logiface.LevelInformational,
	"notice":  logiface.LevelNotice,
	"warning": logiface.LevelWarning,
	"warn":    logiface.LevelWarning,
	"error":   logiface.LevelError,
	"err":     logiface.LevelError,
	"off":     logiface.LevelDisabled,
	// numeric verbosity, most verbose first
	"0": logiface.LevelDebug,
	"1": logiface.LevelInformational,
	"2": logiface.LevelWarning,
	"3": logiface.LevelError,
}

// ParseLevel parses a case-insensitive level name, or a number from 0
// (debug) to 3 (error).
func ParseLevel(s string) (logiface.Level, error) {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Formats {
		if f == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// New builds a logger writing to w. Events above level are discarded before
// reaching the backend.
func New(w io.Writer, format Format, level logiface.Level) (*logiface.Logger[logiface.Event], error) {
	switch format {
	case FormatJSON:
		return stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(level),
		).Logger(), nil

	case FormatConsole:
		z := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
			Level(zerolog.TraceLevel).
			With().
			Timestamp().
			Logger()
		return newConsoleLogger(z, level), nil

	case FormatText:
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(logrus.TraceLevel)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
		return newTextLogger(l, level), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
