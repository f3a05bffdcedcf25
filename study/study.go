// Package study runs the heart-disease analysis end to end: load the data,
// explore it, split and scale it, fit a logistic regression and a random
// forest, evaluate both on the held-out rows and rank the features.
package study

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartml/config"
	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/dataset"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/preprocessing"
	"github.com/YuminosukeSato/heartml/report"
	"github.com/YuminosukeSato/heartml/sklearn/ensemble"
	"github.com/YuminosukeSato/heartml/sklearn/linear_model"
	"github.com/YuminosukeSato/heartml/sklearn/model_selection"
	"github.com/YuminosukeSato/heartml/viz"
)

// Model names used in sections, logs and Result.Evaluations.
const (
	ModelLogisticRegression = "Logistic Regression"
	ModelRandomForest       = "Random Forest"
)

// Artifact file names, relative to the output directory.
const (
	PlotTargetDistribution = "target_distribution.png"
	PlotCorrelation        = "correlation_heatmap.png"
	PlotConfusionLogReg    = "confusion_matrix_logistic_regression.png"
	PlotConfusionForest    = "confusion_matrix_random_forest.png"
	PlotFeatureImportance  = "feature_importance.png"

	ModelFileScaler = "scaler.gob"
	ModelFileLogReg = "logistic_regression.gob"
	ModelFileForest = "random_forest.gob"
)

// Summary is the exploratory part of a run.
type Summary struct {
	Rows         int
	Columns      int
	Info         *dataset.FrameInfo
	Description  *dataset.Description
	TargetCounts *dataset.ValueCounts
	Correlation  *dataset.Correlation
}

// Evaluation is the held-out performance of one model.
type Evaluation struct {
	Model       string
	Accuracy    float64
	Report      *metrics.Report
	Confusion   *mat.Dense
	Labels      []int
	Predictions *mat.Dense
}

// CVSummary is the cross-validated accuracy of one model on the training set.
type CVSummary struct {
	Model  string
	Scores []float64
	Mean   float64
	Std    float64
}

// Result is everything a run produced.
type Result struct {
	RunID           string
	Summary         Summary
	TrainShape      [2]int
	TestShape       [2]int
	Evaluations     []*Evaluation
	Importances     []report.Importance
	CrossValidation []CVSummary
	Plots           []string
	ModelFiles      []string
	ReportFiles     []string
	Report          *report.Report
}

// Evaluation returns the evaluation of the named model, or nil.
func (r *Result) Evaluation(name string) *Evaluation {
	for _, ev := range r.Evaluations {
		if ev.Model == name {
			return ev
		}
	}
	return nil
}

// Option configures Run and Describe.
type Option func(*runner)

// WithOutput sets where the console report is printed. The default
// discards it.
func WithOutput(w io.Writer) Option {
	return func(r *runner) { r.out = w }
}

type runner struct {
	cfg    *config.Config
	logger log.Logger
	out    io.Writer
	rep    *report.Report
	res    *Result
}

func newRunner(cfg *config.Config, logger log.Logger, opts []Option) (*runner, error) {
	if cfg == nil {
		return nil, errors.NewValueError("study", "config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLoggerWithName("study")
	}
	r := &runner{cfg: cfg, out: io.Discard}
	for _, opt := range opts {
		opt(r)
	}
	runID := uuid.NewString()
	r.logger = logger.With(log.RunIDKey, runID)
	r.rep = report.New("Heart disease study", r.out)
	r.res = &Result{RunID: runID, Report: r.rep}
	return r, nil
}

// Describe loads the data and prints the exploratory summaries only.
func Describe(ctx context.Context, cfg *config.Config, logger log.Logger, opts ...Option) (res *Result, err error) {
	defer errors.Recover(&err, "study.Describe")
	r, err := newRunner(cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	defer r.logFailure(&err)
	if _, err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.res, nil
}

// Run performs the full study. Plots, models and the Markdown/HTML report
// are written to cfg.OutputDir when enabled.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger, opts ...Option) (res *Result, err error) {
	defer errors.Recover(&err, "study.Run")
	r, err := newRunner(cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	defer r.logFailure(&err)
	start := time.Now()
	r.logger.Info("study started", "config", cfg)

	frame, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.SavePlots {
		if err := r.plotExploration(); err != nil {
			return nil, err
		}
	}

	split, names, err := r.split(ctx, frame)
	if err != nil {
		return nil, err
	}

	scaler, XTrainScaled, XTestScaled, err := r.scale(split)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logreg := r.newLogisticRegression()
	fitStart := time.Now()
	if err := logreg.Fit(XTrainScaled, split.YTrain); err != nil {
		return nil, errors.Wrap(err, "fit logistic regression")
	}
	r.logFitted(ModelLogisticRegression, split.XTrain, fitStart)
	if err := r.evaluate(ModelLogisticRegression, logreg, XTestScaled, split.YTest,
		viz.PaletteBlues, PlotConfusionLogReg); err != nil {
		return nil, err
	}

	forest := r.newRandomForest()
	fitStart = time.Now()
	if err := forest.FitContext(ctx, split.XTrain, split.YTrain); err != nil {
		return nil, errors.Wrap(err, "fit random forest")
	}
	r.logFitted(ModelRandomForest, split.XTrain, fitStart)
	if err := r.evaluate(ModelRandomForest, forest, split.XTest, split.YTest,
		viz.PaletteGreens, PlotConfusionForest); err != nil {
		return nil, err
	}

	if err := r.rankFeatures(forest, names); err != nil {
		return nil, err
	}

	if cfg.CVFolds > 0 {
		if err := r.crossValidate(ctx, split); err != nil {
			return nil, err
		}
	}

	if cfg.SaveModels {
		if err := r.saveModels(scaler, logreg, forest); err != nil {
			return nil, err
		}
	}
	if err := r.finish(); err != nil {
		return nil, err
	}

	r.logger.Info("study finished",
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"plots", len(r.res.Plots),
	)
	return r.res, nil
}

func (r *runner) logFitted(name string, X mat.Matrix, start time.Time) {
	rows, cols := X.Dims()
	r.logger.Info("model fitted",
		log.PhaseKey, log.PhaseTraining,
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, name,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
}

func (r *runner) logFailure(errp *error) {
	if *errp == nil {
		return
	}
	r.logger.Error("study failed", *errp, log.ErrorCodeKey, errorCode(*errp))
}

// errorCode classifies err for the error.code log attribute.
func errorCode(err error) string {
	var (
		notFitted *errors.NotFittedError
		dimension *errors.DimensionError
		invalid   *errors.ValidationError
		value     *errors.ValueError
		data      *errors.DataError
		problems  config.Problems
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return log.ErrorCancelled
	case errors.Is(err, errors.ErrEmptyData):
		return log.ErrorEmptyData
	case errors.As(err, &notFitted):
		return log.ErrorNotFitted
	case errors.As(err, &dimension):
		return log.ErrorDimensionMismatch
	case errors.As(err, &invalid), errors.As(err, &value), errors.As(err, &data),
		errors.As(err, &problems), errors.Is(err, errors.ErrUnknownColumn), errors.Is(err, os.ErrNotExist):
		return log.ErrorInvalidInput
	default:
		return log.ErrorInternal
	}
}

func (r *runner) load(ctx context.Context) (*dataset.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loadStart := time.Now()
	frame, err := dataset.Load(r.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	rows, cols := frame.Shape()
	r.logger.Info("dataset loaded",
		log.PhaseKey, log.PhaseLoad,
		log.SourceKey, frame.Source(),
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(loadStart).Milliseconds(),
	)
	r.res.Summary.Rows, r.res.Summary.Columns = rows, cols

	r.rep.Section("Dataset").
		Line("Source: %s", frame.Source()).
		Line("Shape: %s", dataset.FormatShape(rows, cols)).
		Line("First 5 rows:").
		Pre(frame.Head(5).String())

	info := frame.Info()
	r.res.Summary.Info = info
	r.rep.Section("Info").Pre(info.String())

	desc, err := frame.Describe()
	if err != nil {
		return nil, err
	}
	r.res.Summary.Description = desc
	r.rep.Section("Summary statistics").Pre(desc.String())

	counts, err := frame.ValueCounts(r.cfg.Target)
	if err != nil {
		return nil, errors.Wrap(err, "target column")
	}
	r.res.Summary.TargetCounts = counts
	r.rep.Section("Target distribution").Pre(counts.String())

	if rows >= 2 {
		corr, err := frame.Corr()
		if err != nil {
			return nil, err
		}
		r.res.Summary.Correlation = corr
	}

	r.logger.Info("dataset explored",
		log.PhaseKey, log.PhaseExplore,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ClassesKey, len(counts.Counts),
	)
	return frame, nil
}

func (r *runner) plotOptions(title string, extra ...viz.Option) []viz.Option {
	opts := []viz.Option{
		viz.WithTitle(title),
		viz.WithSize(vg.Length(r.cfg.PlotWidth)*vg.Inch, vg.Length(r.cfg.PlotHeight)*vg.Inch),
	}
	return append(opts, extra...)
}

func (r *runner) plotPath(name string) string {
	return filepath.Join(r.cfg.OutputDir, name)
}

func (r *runner) recordPlot(sec *report.Section, caption, path string) {
	r.res.Plots = append(r.res.Plots, path)
	sec.Image(caption, path)
}

func (r *runner) plotExploration() error {
	sec := r.rep.Section("Exploration plots")

	// seaborn の countplot と同じくクラスの昇順で並べる
	counts := append([]dataset.ValueCount(nil), r.res.Summary.TargetCounts.Counts...)
	sort.Slice(counts, func(a, b int) bool { return counts[a].Value < counts[b].Value })
	categories := make([]string, len(counts))
	values := make([]int, len(counts))
	for i, c := range counts {
		categories[i] = strconv.FormatFloat(c.Value, 'f', -1, 64)
		values[i] = c.Count
	}
	const countTitle = "Heart disease distribution (0: none, 1: present)"
	path := r.plotPath(PlotTargetDistribution)
	if err := viz.CountPlot(categories, values, path,
		r.plotOptions(countTitle, viz.WithAxisLabels(r.cfg.Target, "count"))...); err != nil {
		return err
	}
	r.recordPlot(sec, countTitle, path)

	if corr := r.res.Summary.Correlation; corr != nil {
		path := r.plotPath(PlotCorrelation)
		if err := viz.CorrelationHeatmap(corr.Columns, corr.Matrix, path,
			r.plotOptions("Correlation matrix")...); err != nil {
			return err
		}
		r.recordPlot(sec, "Correlation matrix", path)
	}
	return nil
}

func (r *runner) split(ctx context.Context, frame *dataset.Frame) (*model_selection.Split, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	X, y, err := frame.XY(r.cfg.Target)
	if err != nil {
		return nil, nil, err
	}
	split, err := model_selection.TrainTestSplit(X.Matrix(), y,
		model_selection.WithTestSize(r.cfg.TestSize),
		model_selection.WithRandomState(r.cfg.RandomState),
		model_selection.WithStratify(r.cfg.Stratify),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "train/test split")
	}

	trainRows, cols := split.XTrain.Dims()
	testRows, _ := split.XTest.Dims()
	r.res.TrainShape = [2]int{trainRows, cols}
	r.res.TestShape = [2]int{testRows, cols}
	r.rep.Section("Train/test split").
		Shape("X_train", trainRows, cols).
		Shape("X_test", testRows, cols)
	r.logger.Info("data split",
		log.PhaseKey, log.PhaseSplit,
		"train_samples", trainRows,
		"test_samples", testRows,
		"stratify", r.cfg.Stratify,
	)
	return split, X.Columns(), nil
}

func (r *runner) scale(split *model_selection.Split) (preprocessing.Scaler, mat.Matrix, mat.Matrix, error) {
	scaler, err := preprocessing.NewScaler(r.cfg.Scaler)
	if err != nil {
		return nil, nil, nil, err
	}
	train, err := scaler.FitTransform(split.XTrain)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "scale training set")
	}
	test, err := scaler.Transform(split.XTest)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "scale test set")
	}
	r.logger.Debug("features scaled",
		log.PhaseKey, log.PhasePreprocessing,
		log.OperationKey, log.OperationFitTransform,
		"scaler", r.cfg.Scaler,
	)
	return scaler, train, test, nil
}

func (r *runner) newLogisticRegression() *linear_model.LogisticRegression {
	return linear_model.NewLogisticRegression(
		linear_model.WithLRMaxIter(r.cfg.LogRegMaxIter),
		linear_model.WithLRC(r.cfg.LogRegC),
		linear_model.WithLRSolver(r.cfg.Solver),
	)
}

func (r *runner) newRandomForest() *ensemble.RandomForestClassifier {
	return ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(r.cfg.NEstimators),
		ensemble.WithRandomState(r.cfg.RandomState),
		ensemble.WithMaxDepth(r.cfg.MaxDepth),
		ensemble.WithNJobs(r.cfg.NJobs),
	)
}

func labelNames(labels []int) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = strconv.Itoa(l)
	}
	return out
}

func (r *runner) evaluate(name string, clf model.Predictor, X, y mat.Matrix, palette, plotFile string) error {
	pred, err := clf.Predict(X)
	if err != nil {
		return errors.Wrapf(err, "predict with %s", name)
	}
	acc, err := metrics.AccuracyMatrix(y, pred)
	if err != nil {
		return err
	}
	rep, err := metrics.ClassificationReport(y, pred)
	if err != nil {
		return err
	}
	cm, labels, err := metrics.ConfusionMatrix(y, pred)
	if err != nil {
		return err
	}

	ev := &Evaluation{
		Model:       name,
		Accuracy:    acc,
		Report:      rep,
		Confusion:   cm,
		Labels:      labels,
		Predictions: mat.DenseCopyOf(pred),
	}
	r.res.Evaluations = append(r.res.Evaluations, ev)

	sec := r.rep.Section(name).
		Metric("Accuracy", acc).
		Line("Classification report:").
		Pre(rep.String()).
		ConfusionMatrix(cm, labelNames(labels))

	if r.cfg.SavePlots {
		title := "Confusion matrix - " + name
		path := r.plotPath(plotFile)
		if err := viz.ConfusionMatrixHeatmap(cm, labelNames(labels), path,
			r.plotOptions(title, viz.WithPalette(palette))...); err != nil {
			return err
		}
		r.recordPlot(sec, title, path)
	}

	r.logger.Info("model evaluated",
		log.PhaseKey, log.PhaseEvaluation,
		log.OperationKey, log.OperationPredict,
		log.ModelNameKey, name,
		log.AccuracyKey, acc,
		log.SamplesKey, ev.Predictions.RawMatrix().Rows,
	)
	return nil
}

func (r *runner) rankFeatures(forest model.FeatureImportancer, names []string) error {
	importances, err := forest.FeatureImportances()
	if err != nil {
		return err
	}
	if len(importances) != len(names) {
		return errors.NewDimensionError("study.rankFeatures", len(names), len(importances), 1)
	}
	ranking := make([]report.Importance, len(names))
	for i, name := range names {
		ranking[i] = report.Importance{Feature: name, Value: importances[i]}
	}
	sort.SliceStable(ranking, func(a, b int) bool { return ranking[a].Value > ranking[b].Value })
	r.res.Importances = ranking

	sec := r.rep.Section("Feature importance (Random Forest)").Importances(ranking)
	if r.cfg.SavePlots {
		features := make([]string, len(ranking))
		values := make([]float64, len(ranking))
		for i, imp := range ranking {
			features[i], values[i] = imp.Feature, imp.Value
		}
		const title = "Feature importance (Random Forest)"
		path := r.plotPath(PlotFeatureImportance)
		if err := viz.FeatureImportanceBar(features, values, path,
			r.plotOptions(title, viz.WithAxisLabels("importance", ""))...); err != nil {
			return err
		}
		r.recordPlot(sec, title, path)
	}
	return nil
}

func (r *runner) crossValidate(ctx context.Context, split *model_selection.Split) error {
	folds := r.cfg.CVFolds
	splitter := model_selection.NewStratifiedKFold(folds, true, r.cfg.RandomState)
	candidates := []struct {
		name    string
		factory func() model.Classifier
	}{
		{ModelLogisticRegression, func() model.Classifier {
			return &scaledClassifier{kind: r.cfg.Scaler, clf: r.newLogisticRegression()}
		}},
		{ModelRandomForest, func() model.Classifier { return r.newRandomForest() }},
	}

	sec := r.rep.Section(fmt.Sprintf("Cross-validation (%d-fold stratified, training set)", folds))
	for _, c := range candidates {
		cv, err := model_selection.CrossValScore(ctx, c.factory, split.XTrain, split.YTrain, splitter,
			model_selection.WithNJobs(r.cfg.NJobs),
			model_selection.WithLogger(r.logger.With(log.ModelNameKey, c.name)))
		if err != nil {
			return errors.Wrapf(err, "cross-validate %s", c.name)
		}
		summary := CVSummary{
			Model:  c.name,
			Scores: cv.TestScores,
			Mean:   cv.GetMeanScore(),
			Std:    cv.GetStdScore(),
		}
		r.res.CrossValidation = append(r.res.CrossValidation, summary)
		sec.Line("%s: accuracy %.4f (std %.4f)", c.name, summary.Mean, summary.Std)
		r.logger.Info("cross-validation finished",
			log.PhaseKey, log.PhaseValidation,
			log.ModelNameKey, c.name,
			log.CVScoreKey, summary.Mean,
			log.CVStdKey, summary.Std,
		)
	}
	return nil
}

func (r *runner) saveModels(scaler preprocessing.Scaler, logreg *linear_model.LogisticRegression,
	forest *ensemble.RandomForestClassifier) error {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	models := []struct {
		file  string
		value interface{}
	}{
		{ModelFileScaler, scaler},
		{ModelFileLogReg, logreg},
		{ModelFileForest, forest},
	}
	for _, m := range models {
		path := filepath.Join(r.cfg.OutputDir, m.file)
		if err := model.SaveModel(m.value, path); err != nil {
			return errors.Wrapf(err, "save %s", m.file)
		}
		r.res.ModelFiles = append(r.res.ModelFiles, path)
		r.logger.Info("model saved", log.OutputPathKey, path)
	}
	return nil
}

func (r *runner) finish() error {
	if len(r.res.Plots) > 0 || len(r.res.ModelFiles) > 0 {
		sec := r.rep.Section("Output files")
		for _, p := range r.res.Plots {
			sec.Line("%s", p)
		}
		for _, p := range r.res.ModelFiles {
			sec.Line("%s", p)
		}
	}
	if !r.cfg.Report {
		return nil
	}
	paths, err := r.rep.Save(r.cfg.OutputDir)
	if err != nil {
		return err
	}
	r.res.ReportFiles = paths
	for _, p := range paths {
		fmt.Fprintf(r.out, "report written: %s\n", p)
		r.logger.Info("report written", log.PhaseKey, log.PhaseReport, log.OutputPathKey, p)
	}
	return nil
}
