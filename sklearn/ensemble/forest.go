// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/core/parallel"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/sklearn/tree"
)

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap resamples with random feature subsets at each split.
//
// Each tree receives a seed drawn up front from the forest's random state,
// so the fitted forest is the same whatever the goroutine scheduling.
type RandomForestClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2", "all" または整数
	bootstrap       bool
	randomState     int64
	nJobs           int

	// 学習済みパラメータ
	estimators_         []*tree.DecisionTreeClassifier
	classes_            []int
	nFeatures_          int
	featureImportances_ []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree.
func WithCriterion(c string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithMaxDepth limits the depth of every tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithMinSamplesSplit sets min_samples_split of every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature budget: "sqrt", "log2", "all"
// or a positive integer.
func WithMaxFeatures(mf string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mf }
}

// WithBootstrap toggles bootstrap resampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithRandomState seeds the forest.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs bounds the number of trees fitted concurrently. Values <= 0
// use one worker per CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		nJobs:           -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validateParams() error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if rf.criterion != "gini" && rf.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", rf.criterion)
	}
	if rf.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative (0 = unlimited)", rf.maxDepth)
	}
	if rf.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", rf.minSamplesSplit)
	}
	if rf.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", rf.minSamplesLeaf)
	}
	_, err := rf.resolveMaxFeatures(1)
	return err
}

// resolveMaxFeatures converts the max_features setting into a count.
func (rf *RandomForestClassifier) resolveMaxFeatures(nFeatures int) (int, error) {
	var k int
	switch rf.maxFeatures {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	case "all", "":
		k = nFeatures
	default:
		n, err := strconv.Atoi(rf.maxFeatures)
		if err != nil || n <= 0 {
			return 0, errors.NewValidationError("max_features", "must be 'sqrt', 'log2', 'all' or a positive integer", rf.maxFeatures)
		}
		k = n
	}
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		k = nFeatures
	}
	return k, nil
}

func (rf *RandomForestClassifier) newTree(maxFeatures int, seed int64) *tree.DecisionTreeClassifier {
	return tree.NewDecisionTreeClassifier(
		tree.WithCriterion(rf.criterion),
		tree.WithMaxDepth(rf.maxDepth),
		tree.WithMinSamplesSplit(rf.minSamplesSplit),
		tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
		tree.WithMaxFeatures(maxFeatures),
		tree.WithRandomState(seed),
	)
}

// Fit fits the forest. It is FitContext with a background context.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext fits nEstimators trees concurrently. Fitting stops at the first
// tree error or when ctx is cancelled.
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := rf.validateParams(); err != nil {
		return err
	}
	rows, cols, err := model.CheckXY("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	_, classes, err := model.Labels("RandomForestClassifier.Fit", y)
	if err != nil {
		return err
	}
	maxFeatures, err := rf.resolveMaxFeatures(cols)
	if err != nil {
		return err
	}

	start := time.Now()
	rf.state.Reset()

	// sklearnと同様、木ごとのシードを先に引いておく
	master := rand.New(rand.NewPCG(uint64(rf.randomState), 0))
	seeds := make([]int64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Int64()
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel.Workers(rf.nJobs))
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dt := rf.newTree(maxFeatures, seeds[i])
			var weights []float64
			if rf.bootstrap {
				weights = bootstrapWeights(rows, seeds[i])
			}
			if err := dt.FitWeighted(X, y, weights); err != nil {
				return errors.Wrapf(err, "fit tree %d", i)
			}
			trees[i] = dt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.NewModelError("RandomForestClassifier.Fit", "tree fitting failed", err)
	}

	rf.estimators_ = trees
	rf.classes_ = classes
	rf.nFeatures_ = cols
	rf.featureImportances_ = averageImportances(trees, cols)
	rf.state.SetDimensions(cols, rows)
	rf.state.SetFitted()

	log.GetLoggerWithName("ensemble").Debug("RandomForestClassifier fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"n_estimators", rf.nEstimators,
		"max_features", maxFeatures,
	)
	return nil
}

// bootstrapWeights draws n indices with replacement and returns how many
// times each row was drawn.
func bootstrapWeights(n int, seed int64) []float64 {
	rng := rand.New(rand.NewPCG(uint64(seed), 1))
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[rng.IntN(n)]++
	}
	return w
}

// averageImportances averages the importances of trees that made at least
// one split and renormalises the result to sum to 1.
func averageImportances(trees []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for _, t := range trees {
		if t.GetNLeaves() <= 1 {
			continue
		}
		floats.Add(out, t.GetFeatureImportances())
		used++
	}
	if used == 0 {
		return out
	}
	if sum := floats.Sum(out); sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

func (rf *RandomForestClassifier) checkPredict(op string, X mat.Matrix) (int, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", op); err != nil {
		return 0, err
	}
	rows, cols, err := model.CheckX("RandomForestClassifier."+op, X)
	if err != nil {
		return 0, err
	}
	if err := rf.state.RequireFeatures("RandomForestClassifier."+op, cols); err != nil {
		return 0, err
	}
	return rows, nil
}

// PredictProba returns the mean of the trees' class probabilities.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := rf.checkPredict("PredictProba", X)
	if err != nil {
		return nil, err
	}

	sum := mat.NewDense(rows, len(rf.classes_), nil)
	for i, t := range rf.estimators_ {
		p, err := t.PredictProba(X)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ArgmaxRows(proba, rf.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// IsFitted reports whether the forest has been trained or loaded.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// FeatureImportances returns the impurity-based importances, summing to 1.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.featureImportances_...), nil
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams updates hyperparameters. Unknown keys and invalid values are
// rejected.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion", "max_features":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if key == "criterion" {
				rf.criterion = s
			} else {
				rf.maxFeatures = s
			}
		case "bootstrap":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			rf.bootstrap = b
		case "n_estimators", "max_depth", "min_samples_split", "min_samples_leaf", "random_state", "n_jobs":
			v, err := model.ToInt(key, value)
			if err != nil {
				return err
			}
			switch key {
			case "n_estimators":
				rf.nEstimators = v
			case "max_depth":
				rf.maxDepth = v
			case "min_samples_split":
				rf.minSamplesSplit = v
			case "min_samples_leaf":
				rf.minSamplesLeaf = v
			case "random_state":
				rf.randomState = int64(v)
			case "n_jobs":
				rf.nJobs = v
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return rf.validateParams()
}

// forestState is the gob representation of a RandomForestClassifier.
type forestState struct {
	Params      map[string]string
	NEstimators int
	MaxDepth    int
	MinSplit    int
	MinLeaf     int
	Bootstrap   bool
	RandomState int64
	NJobs       int

	Fitted      bool
	Trees       []*tree.DecisionTreeClassifier
	Classes     []int
	NFeatures   int
	Importances []float64
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	st := forestState{
		Params:      map[string]string{"criterion": rf.criterion, "max_features": rf.maxFeatures},
		NEstimators: rf.nEstimators,
		MaxDepth:    rf.maxDepth,
		MinSplit:    rf.minSamplesSplit,
		MinLeaf:     rf.minSamplesLeaf,
		Bootstrap:   rf.bootstrap,
		RandomState: rf.randomState,
		NJobs:       rf.nJobs,
		Fitted:      rf.state.IsFitted(),
		Trees:       rf.estimators_,
		Classes:     rf.classes_,
		NFeatures:   rf.nFeatures_,
		Importances: rf.featureImportances_,
	}
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "encode random forest")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var st forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "decode random forest")
	}
	rf.state = model.NewStateManager()
	rf.criterion = st.Params["criterion"]
	rf.maxFeatures = st.Params["max_features"]
	rf.nEstimators = st.NEstimators
	rf.maxDepth = st.MaxDepth
	rf.minSamplesSplit = st.MinSplit
	rf.minSamplesLeaf = st.MinLeaf
	rf.bootstrap = st.Bootstrap
	rf.randomState = st.RandomState
	rf.nJobs = st.NJobs
	rf.estimators_ = st.Trees
	rf.classes_ = st.Classes
	rf.nFeatures_ = st.NFeatures
	rf.featureImportances_ = st.Importances
	if st.Fitted {
		rf.state.SetDimensions(st.NFeatures, 0)
		rf.state.SetFitted()
	}
	return nil
}
