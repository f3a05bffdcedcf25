package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Output formats accepted by SetupLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// SetupLogger installs the process-wide slog logger. The JSON format uses
// Cloud Logging attribute names; the text format is meant for terminals.
func SetupLogger(w io.Writer, loglevel, format string) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}
	ops := slog.HandlerOptions{
		AddSource: level == slog.LevelDebug,
		Level:     level,
	}

	var handler slog.Handler
	switch format {
	case FormatJSON, "":
		// Replace attributes to convert to CloudLogging format.
		ops.ReplaceAttr = func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			case slog.SourceKey:
				attr = slog.Attr{Key: "logging.googleapis.com/sourceLocation", Value: attr.Value}
			}
			return attr
		}
		handler = slog.NewJSONHandler(w, &ops)
	case FormatText:
		handler = slog.NewTextHandler(w, &ops)
	default:
		return errors.Newf("invalid log format: %q", format)
	}
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))
	return nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Newf("invalid log level: %q", level)
	}
}

// ToLogLevel is like ParseLevel but panics on an unknown level.
func ToLogLevel(level string) slog.Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
	return l
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// GetLogger returns a Logger backed by the current slog default logger.
func GetLogger() Logger {
	return &slogLogger{l: slog.Default()}
}

// GetLoggerWithName returns the default Logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// NewLogger wraps l as a Logger.
func NewLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, normalize(fields)...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, normalize(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, normalize(fields)...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, normalize(fields)...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(normalize(fields)...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// normalize turns a leading bare error into an ErrAttr so ErrFmtHandler
// can attach its stack trace.
func normalize(fields []any) []any {
	if len(fields) == 0 {
		return fields
	}
	if err, ok := fields[0].(error); ok {
		out := make([]any, 0, len(fields))
		out = append(out, ErrAttr(err))
		return append(out, fields[1:]...)
	}
	return fields
}
