// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package logging

import (
	"github.com/joeycumines/logiface"
	"github.com/sirupsen/logrus"
)

// textEvent buffers one text log line. Fields are only handed to logrus on
// write, so a disabled event never builds an entry.
type textEvent struct {
	//lint:ignore U1000 embedded for it's methods
	logiface.UnimplementedEvent
	fields logrus.Fields
	msg    string
	lvl    logiface.Level
}

// textBackend writes events through a logrus logger, configured by New.
type textBackend struct {
	out *logrus.Logger
}

var (
	_ logiface.Event                    = (*textEvent)(nil)
	_ logiface.EventFactory[*textEvent] = (*textBackend)(nil)
	_ logiface.Writer[*textEvent]       = (*textBackend)(nil)
)

func newTextLogger(out *logrus.Logger, level logiface.Level) *logiface.Logger[logiface.Event] {
	b := &textBackend{out: out}
	return logiface.New[*textEvent](
		logiface.WithEventFactory[*textEvent](b),
		logiface.WithWriter[*textEvent](b),
		logiface.WithLevel[*textEvent](level),
	).Logger()
}

func (x *textEvent) Level() logiface.Level {
	if x == nil {
		return logiface.LevelDisabled
	}
	return x.lvl
}

func (x *textEvent) AddField(key string, val any) {
	if x.fields == nil {
		x.fields = make(logrus.Fields, 4)
	}
	x.fields[key] = val
}

func (x *textEvent) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *textEvent) AddError(err error) bool {
	x.AddField(logrus.ErrorKey, err)
	return true
}

func (b *textBackend) NewEvent(level logiface.Level) *textEvent {
	return &textEvent{lvl: level}
}

func (b *textBackend) Write(event *textEvent) error {
	level, ok := logrusLevels[event.lvl]
	if !ok || !b.out.IsLevelEnabled(level) {
		return logiface.ErrDisabled
	}
	b.out.WithFields(event.fields).Log(level, event.msg)
	return nil
}

// logrusLevels caps severity at error, so logging never exits or panics.
var logrusLevels = map[logiface.Level]logrus.Level{
	logiface.LevelTrace:         logrus.TraceLevel,
	logiface.LevelDebug:         logrus.DebugLevel,
	logiface.LevelInformational: logrus.InfoLevel,
	logiface.LevelNotice:        logrus.WarnLevel,
	logiface.LevelWarning:       logrus.WarnLevel,
	logiface.LevelError:         logrus.ErrorLevel,
	logiface.LevelCritical:      logrus.ErrorLevel,
	logiface.LevelAlert:         logrus.ErrorLevel,
	logiface.LevelEmergency:     logrus.ErrorLevel,
}
