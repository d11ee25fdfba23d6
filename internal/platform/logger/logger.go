// Package logger provides structured logging for the game server.
// Every tick failure and state-changing consequence should be traceable through this.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields are structured key/value pairs attached to a log line.
type Fields = logrus.Fields

// Logger provides structured logging with context.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a text logger at info level writing to stdout.
func NewLogger() *Logger {
	l, _ := New("info", "text", os.Stdout)
	return l
}

// New creates a logger with the given level ("debug", "info", ...) and
// format ("text" or "json").
func New(level, format string, out io.Writer) (*Logger, error) {
	base := logrus.New()
	base.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base.SetLevel(lvl)

	switch format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l, _ := New("panic", "text", io.Discard)
	return l
}

// With returns a child logger carrying extra fields.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// Debug logs verbose diagnostics.
func (l *Logger) Debug(msg string) {
	l.entry.Debug(msg)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.entry.Info(msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.entry.Warn(msg)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.entry.Error(msg)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

// Event logs a simulation event for a session.
func (l *Logger) Event(eventType string, sessionID string, details string) {
	l.entry.WithFields(logrus.Fields{
		"event":   eventType,
		"session": sessionID,
	}).Info(details)
}
