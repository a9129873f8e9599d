package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// stackHandler decorates records carrying an error attribute with the stack
// trace recorded by cockroachdb/errors, under StacktraceAttrKey. All other
// records pass through untouched.
type stackHandler struct {
	next slog.Handler
}

func newStackHandler(next slog.Handler) slog.Handler {
	return stackHandler{next: next}
}

func (h stackHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h stackHandler) Handle(ctx context.Context, record slog.Record) error {
	if trace := recordStacktrace(record); trace != "" {
		record.AddAttrs(slog.String(StacktraceAttrKey, trace))
	}
	return h.next.Handle(ctx, record)
}

func (h stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stackHandler{next: h.next.WithAttrs(attrs)}
}

func (h stackHandler) WithGroup(name string) slog.Handler {
	return stackHandler{next: h.next.WithGroup(name)}
}

// recordStacktrace pulls the formatted stack out of the record's error
// attribute. cockroachdb/errors keeps it as the first safe detail.
func recordStacktrace(record slog.Record) string {
	var trace string
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
				trace = details[0]
			}
		}
		return false
	})
	return trace
}
