package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// ErrFmtHandler adds a stacktrace attribute to warn and error records that
// carry a cockroachdb/errors value under ErrAttrKey.
type ErrFmtHandler struct {
	next slog.Handler
}

// WrapByErrFmtHandler wraps next with stacktrace extraction.
func WrapByErrFmtHandler(next slog.Handler) slog.Handler {
	return &ErrFmtHandler{next: next}
}

func (h *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		if err := recordError(r); err != nil {
			if stack := rootStacktrace(err); stack != "" {
				r.AddAttrs(slog.String(StacktraceAttrKey, stack))
			}
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithGroup(g)}
}

func recordError(r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		found, _ = attr.Value.Any().(error)
		return false
	})
	return found
}

// rootStacktrace returns the stack recorded closest to the root cause.
// Wrap adds a stack at every layer; the innermost one shows where the
// study actually failed (a bad CSV row, a failed fold).
func rootStacktrace(err error) string {
	var stack string
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		if details := errors.GetSafeDetails(e).SafeDetails; len(details) > 0 && details[0] != "" {
			stack = details[0]
		}
	}
	return stack
}
