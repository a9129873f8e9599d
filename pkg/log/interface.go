// Package log provides structured logging for model evaluation runs.
//
// It defines a minimal, slog-compatible Logger interface so the evaluation
// components (cross-validation, grid search) can report fold and
// configuration progress without binding callers to a specific backend.
// The default implementation wraps log/slog with a handler that extracts
// cockroachdb/errors stack traces into a dedicated attribute.
package log

import "context"

// Logger is a structured logger compatible with Go's log/slog calling
// convention: a message followed by alternating key/value fields.
type Logger interface {
	// Debug logs detailed diagnostic information, such as per-fold scores.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop an evaluation, such as a
	// single grid configuration failing.
	Warn(msg string, fields ...any)

	// Error logs error conditions. Pass the error with ErrAttr so the
	// handler can attach its stack trace.
	Error(msg string, fields ...any)

	// With returns a Logger that includes fields in every record.
	With(fields ...any) Logger

	// Enabled reports whether records at the given level are emitted,
	// so callers can skip building expensive attribute values.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level with slog-compatible values.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
