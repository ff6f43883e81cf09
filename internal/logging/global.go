package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger instance. Any format other
// than "json" gets the human readable console writer. A non-nil counter is
// attached as a hook so the run can report how many warnings it emitted.
func InitGlobalLogger(level LogLevel, format string, counter *LevelCounter) *Logger {
	globalLogger = newFormattedLogger(level, format, os.Stderr)

	if counter != nil {
		globalLogger.logger = globalLogger.logger.Hook(counter)
	}

	return globalLogger
}

func newFormattedLogger(level LogLevel, format string, out io.Writer) *Logger {
	if format == "json" {
		return NewLogger(level, out)
	}
	return NewLogger(level, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(InfoLevel, os.Stderr)
	}
	return globalLogger
}

// WithModule creates a logger with module field
func WithModule(module string) *zerolog.Logger {
	logger := GetGlobalLogger().logger.With().Str("module", module).Logger()
	return &logger
}
