package log

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	logger, buf := NewTestLogger(LevelInfo)

	logger.Debug("scaler fitted", FeaturesKey, 13)
	logger.Info("dataset loaded", SourceKey, "heart.csv", SamplesKey, 303)
	logger.Warn("class imbalance", ClassesKey, 2)
	logger.Error("study failed", fmt.Errorf("bad row"), ErrorCodeKey, ErrorInvalidInput)

	if buf.Len() == 0 {
		t.Fatal("expected captured output")
	}
	if logger.ContainsMessage("scaler fitted") {
		t.Error("debug record must be dropped at info level")
	}
	for _, msg := range []string{"dataset loaded", "class imbalance", "study failed"} {
		if !logger.ContainsMessage(msg) {
			t.Errorf("message %q not captured", msg)
		}
	}
	if !logger.ContainsField(SamplesKey, 303.0) {
		t.Error("numeric field not captured")
	}
	if !logger.ContainsField("error", "bad row") {
		t.Error("leading error not stored under \"error\"")
	}
	if !logger.ContainsField(ErrorCodeKey, ErrorInvalidInput) {
		t.Error("fields after a leading error were lost")
	}
}

func TestTestLoggerEnabled(t *testing.T) {
	logger, _ := NewTestLogger(LevelWarn)
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info must be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelWarn) || !logger.Enabled(ctx, LevelError) {
		t.Error("warn and error must be enabled at warn level")
	}
}

func TestRunScopedLogger(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	run := logger.With(RunIDKey, "run-42", ComponentKey, "study")

	run.Info("model evaluated",
		PhaseKey, PhaseEvaluation,
		OperationKey, OperationPredict,
		ModelNameKey, "Random Forest",
		AccuracyKey, 0.85,
	)
	logger.Info("unscoped")

	entries := logger.Entries("model evaluated")
	if len(entries) != 1 {
		t.Fatalf("expected one evaluation record, got %d", len(entries))
	}
	want := map[string]interface{}{
		RunIDKey:     "run-42",
		ComponentKey: "study",
		PhaseKey:     PhaseEvaluation,
		OperationKey: OperationPredict,
		ModelNameKey: "Random Forest",
		AccuracyKey:  0.85,
	}
	for k, v := range want {
		if entries[0][k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, entries[0][k])
		}
	}

	unscoped := logger.Entries("unscoped")
	if len(unscoped) != 1 {
		t.Fatalf("expected one unscoped record, got %d", len(unscoped))
	}
	if _, ok := unscoped[0][RunIDKey]; ok {
		t.Error("With must not modify the parent logger")
	}
}

func TestWithStoresErrorsAsMessages(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	logger.With("cause", errors.New("disk full")).Info("report not written", OutputPathKey, "plots/report.md")

	if !logger.ContainsField("cause", "disk full") {
		t.Error("error field should be stored as its message")
	}
	if !logger.ContainsField(OutputPathKey, "plots/report.md") {
		t.Error("output path not captured")
	}
}

// Trees and folds log from worker goroutines.
func TestConcurrentLogging(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	const workers, perWorker = 4, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			child := logger.With(FoldKey, w)
			for i := 0; i < perWorker; i++ {
				child.Debug("fold scored", IterationKey, i)
			}
		}(w)
	}
	wg.Wait()

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatalf("parse entries: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Errorf("expected %d records, got %d", workers*perWorker, len(entries))
	}
}

func BenchmarkTestLogger(b *testing.B) {
	logger, _ := NewTestLogger(LevelInfo)
	run := logger.With(RunIDKey, "bench", ComponentKey, "ensemble")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		run.Info("RandomForestClassifier fitted",
			OperationKey, OperationFit,
			SamplesKey, 242,
			FeaturesKey, 13,
		)
	}
}
