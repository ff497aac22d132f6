// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"github.com/joeycumines/logiface"
)

// Logger is the structured logger accepted by [WithLogger]. A nil *Logger
// is valid, and logs nothing.
type Logger = logiface.Logger[logiface.Event]

// componentLogger returns a child of l tagged with the component name, or
// nil if l cannot write.
func componentLogger(l *Logger, component string) *Logger {
	return l.Clone().Str("component", component).Logger()
}
