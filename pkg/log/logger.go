package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// slogLogger adapts a *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewLogger returns a Logger emitting JSON records to w at the given level.
// Error attributes additionally surface their cockroachdb/errors stack
// trace under StacktraceAttrKey.
func NewLogger(w io.Writer, level Level) Logger {
	ops := slog.HandlerOptions{
		Level: slog.Level(level),
	}
	handler := newStackHandler(slog.NewJSONHandler(w, &ops))
	return &slogLogger{l: slog.New(handler)}
}

// Default returns a Logger writing to stderr at Info level.
func Default() Logger {
	return NewLogger(os.Stderr, LevelInfo)
}

// NewNopLogger returns a Logger that discards every record. Evaluation
// components use it when the caller does not supply a logger.
func NewNopLogger() Logger {
	return &slogLogger{l: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(LevelError + 4)}))}
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

const (
	// ErrAttrKey is the attribute key for error values.
	ErrAttrKey = "error"
	// StacktraceAttrKey is the attribute key for extracted stack traces.
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr wraps err for structured logging.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
