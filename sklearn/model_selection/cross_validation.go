package model_selection

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/core/parallel"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// ScoreFunc scores a fitted classifier on (X, y). Higher is better.
type ScoreFunc func(clf model.Classifier, X, y mat.Matrix) (float64, error)

// AccuracyScore is the default ScoreFunc and calls clf.Score.
func AccuracyScore(clf model.Classifier, X, y mat.Matrix) (float64, error) {
	return clf.Score(X, y)
}

// CVResult stores cross-validation results
type CVResult struct {
	TestScores  []float64
	TrainScores []float64 // nil unless WithReturnTrainScore(true)
	FitTimes    []time.Duration
}

// GetMeanScore returns mean test score
func (cv *CVResult) GetMeanScore() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}
	return stat.Mean(cv.TestScores, nil)
}

// GetStdScore returns the population standard deviation of test scores,
// matching numpy's default used in scikit-learn summaries.
func (cv *CVResult) GetStdScore() float64 {
	if len(cv.TestScores) <= 1 {
		return 0.0
	}
	_, variance := stat.PopMeanVariance(cv.TestScores, nil)
	return math.Sqrt(variance)
}

type cvConfig struct {
	scoring          ScoreFunc
	nJobs            int
	returnTrainScore bool
	logger           log.Logger
}

// CVOption configures CrossValScore.
type CVOption func(*cvConfig)

// WithScoring replaces the accuracy scorer.
func WithScoring(fn ScoreFunc) CVOption {
	return func(c *cvConfig) { c.scoring = fn }
}

// WithNJobs bounds the number of folds fitted concurrently. -1 uses all CPUs.
func WithNJobs(n int) CVOption {
	return func(c *cvConfig) { c.nJobs = n }
}

// WithReturnTrainScore also scores each fold's model on its training rows.
func WithReturnTrainScore(on bool) CVOption {
	return func(c *cvConfig) { c.returnTrainScore = on }
}

// WithLogger sends the per-fold records to logger instead of the package
// logger.
func WithLogger(logger log.Logger) CVOption {
	return func(c *cvConfig) { c.logger = logger }
}

// CrossValScore fits a fresh classifier from factory on every fold produced
// by splitter and scores it on the held-out rows. Folds run concurrently.
// Scores are reported in fold order whatever the scheduling.
func CrossValScore(ctx context.Context, factory func() model.Classifier, X, y mat.Matrix,
	splitter Splitter, opts ...CVOption) (*CVResult, error) {
	cfg := cvConfig{scoring: AccuracyScore, nJobs: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if factory == nil {
		return nil, errors.NewValidationError("factory", "must not be nil", nil)
	}
	if splitter == nil {
		return nil, errors.NewValidationError("splitter", "must not be nil", nil)
	}
	if _, _, err := model.CheckXY("CrossValScore", X, y); err != nil {
		return nil, err
	}

	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}
	nFolds := len(folds)

	result := &CVResult{
		TestScores: make([]float64, nFolds),
		FitTimes:   make([]time.Duration, nFolds),
	}
	if cfg.returnTrainScore {
		result.TrainScores = make([]float64, nFolds)
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.GetLoggerWithName("model_selection")
	}
	sem := semaphore.NewWeighted(int64(parallel.Workers(cfg.nJobs)))
	errs := make([]error, nFolds)
	var wg sync.WaitGroup

	for foldIdx := 0; foldIdx < nFolds; foldIdx++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[foldIdx] = err
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)
			errs[idx] = runFold(ctx, factory, X, y, folds[idx], cfg, result, idx)
			if errs[idx] == nil {
				logger.Debug("fold scored",
					log.FoldKey, idx,
					log.SamplesKey, len(folds[idx].TestIndices),
					"score", result.TestScores[idx],
					log.DurationMsKey, result.FitTimes[idx].Milliseconds(),
				)
			}
		}(foldIdx)
	}
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, errors.Wrapf(err, "fold %d", idx)
		}
	}

	logger.Debug("cross-validation finished",
		"folds", nFolds,
		log.CVScoreKey, result.GetMeanScore(),
		log.CVStdKey, result.GetStdScore(),
	)
	return result, nil
}

func runFold(ctx context.Context, factory func() model.Classifier, X, y mat.Matrix,
	fold Fold, cfg cvConfig, result *CVResult, idx int) (err error) {
	defer errors.Recover(&err, "CrossValScore")

	if err := ctx.Err(); err != nil {
		return err
	}
	trainX, trainY := Subset(X, y, fold.TrainIndices)
	testX, testY := Subset(X, y, fold.TestIndices)

	clf := factory()
	start := time.Now()
	if err := clf.Fit(trainX, trainY); err != nil {
		return err
	}
	result.FitTimes[idx] = time.Since(start)

	score, err := cfg.scoring(clf, testX, testY)
	if err != nil {
		return err
	}
	result.TestScores[idx] = score

	if cfg.returnTrainScore {
		trainScore, err := cfg.scoring(clf, trainX, trainY)
		if err != nil {
			return err
		}
		result.TrainScores[idx] = trainScore
	}
	return nil
}
