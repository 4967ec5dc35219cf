package util

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// Logger wraps slog and provides printf style methods. It satisfies
// pion's LeveledLogger so the WebRTC stack logs through the same handler.
type Logger struct {
	slogLogger *slog.Logger
}

// GetCompatLogger returns a printf style logger tagged with the given scope
func GetCompatLogger(scope string) *Logger {
	return &Logger{
		slogLogger: GetLogger().With("scope", scope),
	}
}

func (l *Logger) Trace(msg string) { l.slogLogger.Debug(msg, "trace", true) }

func (l *Logger) Tracef(format string, v ...interface{}) {
	l.slogLogger.Debug(fmt.Sprintf(format, v...), "trace", true)
}

func (l *Logger) Debug(msg string) { l.slogLogger.Debug(msg) }

// Debugf logs at debug level
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.slogLogger.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Info(msg string) { l.slogLogger.Info(msg) }

// Infof logs at info level
func (l *Logger) Infof(format string, v ...interface{}) {
	l.slogLogger.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(msg string) { l.slogLogger.Warn(msg) }

// Warnf logs at warn level
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.slogLogger.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(msg string) { l.slogLogger.Error(msg) }

// Errorf logs at error level
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.slogLogger.Error(fmt.Sprintf(format, v...))
}

// LoggerFactory hands out scoped compat loggers to pion components.
type LoggerFactory struct{}

func (LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return GetCompatLogger(scope)
}
