// Testing utilities: an in-memory Logger whose records can be inspected.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TestLogger captures records as JSON lines in memory.
// Children created by With share the parent's buffer and lock, so a
// TestLogger may be used from several goroutines.
type TestLogger struct {
	mu     *sync.Mutex
	buffer *bytes.Buffer
	level  Level
	fields map[string]interface{}
}

// NewTestLogger returns a logger that keeps records at or above level and
// the buffer they are written to.
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	res, err := study.Run(ctx, cfg, logger)
//	// buf holds one JSON object per line
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	return &TestLogger{
		mu:     &sync.Mutex{},
		buffer: buffer,
		level:  level,
		fields: make(map[string]interface{}),
	}, buffer
}

// Debug implements Logger.Debug.
func (t *TestLogger) Debug(msg string, fields ...any) { t.log(LevelDebug, "DEBUG", msg, fields) }

// Info implements Logger.Info.
func (t *TestLogger) Info(msg string, fields ...any) { t.log(LevelInfo, "INFO", msg, fields) }

// Warn implements Logger.Warn.
func (t *TestLogger) Warn(msg string, fields ...any) { t.log(LevelWarn, "WARN", msg, fields) }

// Error implements Logger.Error.
func (t *TestLogger) Error(msg string, fields ...any) { t.log(LevelError, "ERROR", msg, fields) }

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	child := &TestLogger{
		mu:     t.mu,
		buffer: t.buffer,
		level:  t.level,
		fields: make(map[string]interface{}, len(t.fields)+len(fields)/2),
	}
	for k, v := range t.fields {
		child.fields[k] = v
	}
	addFields(child.fields, fields)
	return child
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return t.level <= level
}

func (t *TestLogger) log(level Level, name, msg string, fields []any) {
	if level < t.level {
		return
	}
	entry := map[string]interface{}{
		"level":   name,
		"message": msg,
	}
	for k, v := range t.fields {
		entry[k] = v
	}
	// slogLogger と同じく先頭の error は "error" 属性として扱う
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			entry["error"] = err.Error()
			fields = fields[1:]
		}
	}
	addFields(entry, fields)

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`, name, msg, err.Error()))
	}
	t.mu.Lock()
	t.buffer.Write(line)
	t.buffer.WriteByte('\n')
	t.mu.Unlock()
}

// addFields copies key/value pairs into dst. Errors are stored as their
// message; a trailing key without a value is dropped.
func addFields(dst map[string]interface{}, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			dst[key] = err.Error()
			continue
		}
		dst[key] = fields[i+1]
	}
}

// GetLogEntries parses the captured records. Numbers come back as float64.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	t.mu.Lock()
	raw := t.buffer.String()
	t.mu.Unlock()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Entries returns the parsed records whose message equals msg.
func (t *TestLogger) Entries(msg string) []map[string]interface{} {
	all, err := t.GetLogEntries()
	if err != nil {
		return nil
	}
	var out []map[string]interface{}
	for _, e := range all {
		if e["message"] == msg {
			out = append(out, e)
		}
	}
	return out
}

// ContainsMessage reports whether any captured output contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Contains(t.buffer.String(), message)
}

// ContainsField reports whether some record has key set to value.
//
//	if !logger.ContainsField(log.PhaseKey, log.PhaseEvaluation) {
//	    t.Error("evaluation was not logged")
//	}
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}
