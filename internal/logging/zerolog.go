// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package logging

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// consoleEvent wraps a zerolog event. A nil z means zerolog itself has the
// level disabled.
type consoleEvent struct {
	//lint:ignore U1000 embedded for it's methods
	logiface.UnimplementedEvent
	z   *zerolog.Event
	msg string
	lvl logiface.Level
}

// consoleBackend writes events through a zerolog logger, configured by New.
type consoleBackend struct {
	z zerolog.Logger
}

var (
	_ logiface.Event                       = (*consoleEvent)(nil)
	_ logiface.EventFactory[*consoleEvent] = (*consoleBackend)(nil)
	_ logiface.Writer[*consoleEvent]       = (*consoleBackend)(nil)
)

func newConsoleLogger(z zerolog.Logger, level logiface.Level) *logiface.Logger[logiface.Event] {
	b := &consoleBackend{z: z}
	return logiface.New[*consoleEvent](
		logiface.WithEventFactory[*consoleEvent](b),
		logiface.WithWriter[*consoleEvent](b),
		logiface.WithLevel[*consoleEvent](level),
	).Logger()
}

func (x *consoleEvent) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *consoleEvent) AddField(key string, val any) {
	x.z.Interface(key, val)
}

func (x *consoleEvent) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *consoleEvent) AddError(err error) bool {
	x.z.Err(err)
	return true
}

func (x *consoleEvent) AddString(key string, val string) bool {
	x.z.Str(key, val)
	return true
}

func (x *consoleEvent) AddInt(key string, val int) bool {
	x.z.Int(key, val)
	return true
}

func (x *consoleEvent) AddInt64(key string, val int64) bool {
	x.z.Int64(key, val)
	return true
}

func (x *consoleEvent) AddBool(key string, val bool) bool {
	x.z.Bool(key, val)
	return true
}

func (x *consoleEvent) AddDuration(key string, val time.Duration) bool {
	x.z.Dur(key, val)
	return true
}

func (x *consoleBackend) NewEvent(level logiface.Level) *consoleEvent {
	r := consoleEvent{lvl: level}
	switch level {
	case logiface.LevelTrace:
		r.z = x.z.Trace()
	case logiface.LevelDebug:
		r.z = x.z.Debug()
	case logiface.LevelInformational:
		r.z = x.z.Info()
	case logiface.LevelNotice, logiface.LevelWarning:
		r.z = x.z.Warn()
	case logiface.LevelError:
		r.z = x.z.Error()
	default:
		// never exit or panic, unlike zerolog's Fatal and Panic
		r.z = x.z.WithLevel(zerolog.FatalLevel)
	}
	return &r
}

func (x *consoleBackend) Write(event *consoleEvent) error {
	if event.z == nil {
		return logiface.ErrDisabled
	}
	event.z.Msg(event.msg)
	return nil
}
