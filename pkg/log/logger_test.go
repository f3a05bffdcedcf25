package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToLogLevelPanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { ToLogLevel("loud") })
}

func TestSlogLoggerAttachesStacktrace(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewLogger(slog.New(handler)).With(RunIDKey, "run-1")

	logger.Error("fit failed", errors.New("boom"), OperationKey, OperationFit)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fit failed", entry["msg"])
	assert.Equal(t, "run-1", entry[RunIDKey])
	assert.Equal(t, OperationFit, entry[OperationKey])
	assert.Contains(t, entry, ErrAttrKey)
	assert.NotEmpty(t, entry[StacktraceAttrKey])
}

func TestErrFmtHandlerSkipsBelowWarn(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewLogger(slog.New(handler))

	cause := errors.Wrap(errors.New("bad row"), "load heart.csv")
	logger.Info("retrying", cause)
	logger.Warn("skipped", cause)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var info, warn map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &info))
	require.NoError(t, json.Unmarshal(lines[1], &warn))
	assert.NotContains(t, info, StacktraceAttrKey)
	assert.NotEmpty(t, warn[StacktraceAttrKey])
}

func TestSlogLoggerEnabled(t *testing.T) {
	handler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := NewLogger(slog.New(handler))

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, LevelInfo))
	assert.True(t, logger.Enabled(ctx, LevelWarn))
	assert.True(t, logger.Enabled(ctx, LevelError))
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, SetupLogger(&buf, "info", FormatJSON))
	GetLogger().Debug("hidden")
	GetLogger().Info("visible", SamplesKey, 303)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"visible"`)
	assert.Contains(t, out, `"severity":"INFO"`)

	assert.Error(t, SetupLogger(&buf, "info", "xml"))
	assert.Error(t, SetupLogger(&buf, "chatty", FormatText))
}

type fakeWarning struct{ metric string }

func (w *fakeWarning) Error() string { return "metric " + w.metric + " is ill-defined" }

func TestWarningSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWarningSink(&buf, false)

	sink(&fakeWarning{metric: "precision"})

	out := buf.String()
	assert.True(t, strings.Contains(out, "metric precision is ill-defined"), out)
	assert.Contains(t, out, "WRN")
}
