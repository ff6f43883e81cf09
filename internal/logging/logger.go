package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// LogContext holds the pipeline fields attached to a log line
type LogContext struct {
	Module string `json:"module,omitempty"`
	Stage  string `json:"stage,omitempty"`
	Batch  string `json:"batch,omitempty"`
	File   string `json:"file,omitempty"`
	Table  string `json:"table,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}
}

// Zerolog exposes the underlying logger for components that take a zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// WithTrace adds the trace and span ids of the span in ctx, if any
func WithTrace(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
}

// WithContextFields adds the non-empty pipeline fields to logger
func WithContextFields(logger zerolog.Logger, ctx LogContext) zerolog.Logger {
	logCtx := logger.With()

	if ctx.Module != "" {
		logCtx = logCtx.Str("module", ctx.Module)
	}
	if ctx.Stage != "" {
		logCtx = logCtx.Str("stage", ctx.Stage)
	}
	if ctx.Batch != "" {
		logCtx = logCtx.Str("batch", ctx.Batch)
	}
	if ctx.File != "" {
		logCtx = logCtx.Str("file", ctx.File)
	}
	if ctx.Table != "" {
		logCtx = logCtx.Str("table", ctx.Table)
	}
	if ctx.RunID != "" {
		logCtx = logCtx.Str("run_id", ctx.RunID)
	}

	return logCtx.Logger()
}

// SetLogLevel dynamically changes the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) error {
	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}

	l.logger = l.logger.Level(level)
	return nil
}
