package logger

import "github.com/sirupsen/logrus"

// logrusLogger adapts *logrus.Entry to the Logger interface. Grounded on
// the pack's logrus-based protocol stacks (IEC-104, SIP, CANopen), which
// all use logrus as their structured logging backend.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger returns a Logger backed by logrus, tagging every line
// with category and any extra fields supplied.
func NewLogrusLogger(category string, fields logrus.Fields) Logger {
	entry := logrus.WithField("layer", category)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debug(format string, v ...any) {
	l.entry.Debugf(format, v...)
}

func (l *logrusLogger) Warn(format string, v ...any) {
	l.entry.Warnf(format, v...)
}
