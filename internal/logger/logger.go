// Package logger threads a structured logging handle through the
// connection, file manager, and client session instead of the package
// level globals (g_debug and friends) the original C implementation used.
package logger

import "github.com/sirupsen/logrus"

// Logger wraps a logrus entry pre-populated with component fields. The
// zero value is not usable; construct with New.
type Logger struct {
	entry *logrus.Entry
}

// New returns a root logger backed by base; a nil base means
// logrus.StandardLogger(), the process-wide logrus configuration.
func New(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return Logger{entry: logrus.NewEntry(base)}
}

// With returns a child logger with an additional field, e.g.
// log = log.With("conn_id", id).With("component", "filemanager").
func (l Logger) With(key string, value any) Logger {
	if l.entry == nil {
		l = New(nil)
	}
	return Logger{entry: l.entry.WithField(key, value)}
}

func (l Logger) fields() *logrus.Entry {
	if l.entry == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return l.entry
}

func (l Logger) Tracef(format string, args ...any) { l.fields().Tracef(format, args...) }
func (l Logger) Debugf(format string, args ...any) { l.fields().Debugf(format, args...) }
func (l Logger) Infof(format string, args ...any)  { l.fields().Infof(format, args...) }
func (l Logger) Warnf(format string, args ...any)  { l.fields().Warnf(format, args...) }
func (l Logger) Errorf(format string, args ...any) { l.fields().Errorf(format, args...) }
