// Package log provides the leveled logger used across this module.
//
// The shape is lifted straight from the teacher's definition.Logger:
// Info/Warn/Error/Debug/Fatal pairs plus ToggleDebug, but backed by
// logrus instead of the standard library's log.Logger so callers can
// attach structured fields (device, component) without losing the
// familiar calling convention.
package log

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the interface every component in this module logs through.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool

	// With returns a Logger that tags every record with the given field,
	// e.g. log.With("device", "synth.1").
	With(key string, value interface{}) Logger
}

// entry wraps a logrus.Entry to satisfy Logger.
type entry struct {
	*logrus.Entry
	debug bool
}

// NewDefaultLogger returns the logger used when a Device is not given one
// explicitly. Output goes to stderr, matching the teacher's default.
func NewDefaultLogger(component string) Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors: color.NoColor,
		FullTimestamp: true,
	})
	base.SetLevel(logrus.InfoLevel)
	return &entry{Entry: base.WithField("component", component), debug: false}
}

// NewWriterLogger is used by tests that want to assert on log output.
func NewWriterLogger(component string, w io.Writer) Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	return &entry{Entry: base.WithField("component", component), debug: false}
}

func (e *entry) With(key string, value interface{}) Logger {
	return &entry{Entry: e.Entry.WithField(key, value), debug: e.debug}
}

func (e *entry) Info(v ...interface{})                 { e.Entry.Info(v...) }
func (e *entry) Infof(format string, v ...interface{}) { e.Entry.Infof(format, v...) }
func (e *entry) Warn(v ...interface{})                 { e.Entry.Warn(v...) }
func (e *entry) Warnf(format string, v ...interface{}) { e.Entry.Warnf(format, v...) }
func (e *entry) Error(v ...interface{})                 { e.Entry.Error(v...) }
func (e *entry) Errorf(format string, v ...interface{}) { e.Entry.Errorf(format, v...) }
func (e *entry) Fatal(v ...interface{})                 { e.Entry.Fatal(v...) }
func (e *entry) Fatalf(format string, v ...interface{}) { e.Entry.Fatalf(format, v...) }

func (e *entry) Debug(v ...interface{}) {
	if e.debug {
		e.Entry.Debug(v...)
	}
}

func (e *entry) Debugf(format string, v ...interface{}) {
	if e.debug {
		e.Entry.Debugf(format, v...)
	}
}

func (e *entry) ToggleDebug(value bool) bool {
	e.debug = value
	if value {
		e.Entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		e.Entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return e.debug
}
