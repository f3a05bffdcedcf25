// Package log provides the structured logging layer of heartml.
//
// The Logger interface is slog-compatible and carries ML-specific attribute
// keys (operation, data shape, metrics) so that every stage of a study run
// can be correlated by run id. SetupLogger installs the process-wide slog
// handler, GetLogger adapts it to Logger, and NewTestLogger captures records
// in memory for tests.
//
// Example usage:
//   logger := log.GetLogger().With(
//       log.ModelNameKey, "RandomForestClassifier",
//       log.RunIDKey, runID,
//   )
//   logger.Info("Training started",
//       log.OperationKey, log.OperationFit,
//       log.SamplesKey, 242,
//       log.FeaturesKey, 13,
//   )

package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. The With method returns a child
// logger whose fields are attached to every subsequent record.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	//
	// Example:
	//   logger.Info("Model training completed",
	//       log.DurationMsKey, 5432,
	//       log.AccuracyKey, 0.95,
	//   )
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. Pass the error under ErrAttrKey
	// (or via ErrAttr) so that its stack trace is extracted.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
// This type allows for level-based filtering of log messages.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
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
