// Package tree implements a CART decision tree classifier.
package tree

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

const leafFeature = -1

// node is one entry of the flattened tree. Fields are exported for gob.
type node struct {
	Feature   int // leafFeature for leaves
	Threshold float64
	Left      int
	Right     int
	Value     []float64 // weighted class fractions, aligned with classes_
	Impurity  float64
	Weight    float64
}

// DecisionTreeClassifier is a CART classifier with scikit-learn semantics:
// samples with x[feature] <= threshold go left, thresholds are midpoints
// between consecutive distinct values and feature importances are the
// normalised total weighted impurity decrease per feature.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	criterion       string
	maxDepth        int // 0 = 無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 = 全特徴量
	randomState     int64

	// 学習済みパラメータ
	nodes               []node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the tree depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are drawn at each split. 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature sampling and the order in which
// candidate features are examined.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validateParams() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative (0 = unlimited)", dt.maxDepth)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	if dt.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative (0 = all)", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n×p) and integer labels y (n×1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted builds the tree with per-sample weights. A weight of k acts as
// k copies of the sample and rows with weight 0 are ignored, which is how
// bootstrap resampling is expressed. Classes are taken from all of y so that
// trees fitted on different resamples share the same probability columns.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	if err := dt.validateParams(); err != nil {
		return err
	}
	rows, cols, err := model.CheckXY("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	labels, classes, err := model.Labels("DecisionTreeClassifier.Fit", y)
	if err != nil {
		return err
	}
	if sampleWeight != nil && len(sampleWeight) != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, len(sampleWeight), 0)
	}

	dt.state.Reset()
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = cols
	dt.nodes = dt.nodes[:0]
	dt.depth_ = 0
	dt.nLeaves_ = 0

	b := &builder{
		dt:          dt,
		X:           X,
		y:           make([]int, rows),
		w:           make([]float64, rows),
		importances: make([]float64, cols),
		rng:         rand.New(rand.NewPCG(uint64(dt.randomState), uint64(dt.randomState)^0x9e3779b97f4a7c15)),
	}
	classIdx := model.ClassIndex(classes)
	idx := make([]int, 0, rows)
	for i := 0; i < rows; i++ {
		b.y[i] = classIdx[labels[i]]
		b.w[i] = 1
		if sampleWeight != nil {
			if sampleWeight[i] < 0 {
				return errors.NewValidationError("sample_weight", "must be non-negative", sampleWeight[i])
			}
			b.w[i] = sampleWeight[i]
		}
		if b.w[i] > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "all sample weights are zero")
	}

	b.build(idx, 0)

	var total float64
	for _, v := range b.importances {
		total += v
	}
	dt.featureImportances_ = make([]float64, cols)
	if total > 0 {
		for j, v := range b.importances {
			dt.featureImportances_[j] = v / total
		}
	}

	dt.state.SetDimensions(cols, len(idx))
	dt.state.SetFitted()

	log.GetLoggerWithName("tree").Debug("DecisionTreeClassifier fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(idx),
		log.FeaturesKey, cols,
		"depth", dt.depth_,
		"leaves", dt.nLeaves_,
	)
	return nil
}

// builder holds the state of a single Fit call.
type builder struct {
	dt          *DecisionTreeClassifier
	X           mat.Matrix
	y           []int
	w           []float64
	importances []float64
	rng         *rand.Rand
}

func (b *builder) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	if b.dt.criterion == "entropy" {
		var h float64
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

func (b *builder) classCounts(idx []int) ([]float64, float64) {
	return b.classCountsInto(make([]float64, b.dt.nClasses_), idx)
}

// split is the best candidate found for a node.
type split struct {
	feature   int
	threshold float64
	pos       int // number of samples going left in the sorted order
	impurity  float64
	order     []int
}

// build appends the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	dt := b.dt
	counts, total := b.classCounts(idx)
	imp := b.impurity(counts, total)

	value := make([]float64, len(counts))
	for k, c := range counts {
		value[k] = c / total
	}
	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{Feature: leafFeature, Value: value, Impurity: imp, Weight: total})
	if depth > dt.depth_ {
		dt.depth_ = depth
	}

	n := len(idx)
	if (dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		imp <= 1e-12 {
		dt.nLeaves_++
		return self
	}

	best, ok := b.findSplit(idx, total)
	if !ok {
		dt.nLeaves_++
		return self
	}

	leftIdx := append([]int(nil), best.order[:best.pos]...)
	rightIdx := append([]int(nil), best.order[best.pos:]...)
	lc, lw := b.classCounts(leftIdx)
	rc, rw := b.classCounts(rightIdx)
	b.importances[best.feature] += total*imp - lw*b.impurity(lc, lw) - rw*b.impurity(rc, rw)

	left := b.build(leftIdx, depth+1)
	right := b.build(rightIdx, depth+1)
	dt.nodes[self].Feature = best.feature
	dt.nodes[self].Threshold = best.threshold
	dt.nodes[self].Left = left
	dt.nodes[self].Right = right
	return self
}

// findSplit scans the candidate features and returns the split with the
// lowest weighted child impurity that honours min_samples_leaf.
func (b *builder) findSplit(idx []int, total float64) (split, bool) {
	dt := b.dt
	features := b.rng.Perm(dt.nFeatures_)
	if dt.maxFeatures > 0 && dt.maxFeatures < dt.nFeatures_ {
		features = features[:dt.maxFeatures]
	}

	best := split{impurity: math.Inf(1)}
	found := false
	order := make([]int, len(idx))
	left := make([]float64, dt.nClasses_)
	right := make([]float64, dt.nClasses_)

	for _, f := range features {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool {
			return b.X.At(order[a], f) < b.X.At(order[c], f)
		})

		for k := range left {
			left[k] = 0
		}
		right, _ = b.classCountsInto(right, order)
		var lw float64
		rw := total

		for pos := 1; pos < len(order); pos++ {
			prev := order[pos-1]
			left[b.y[prev]] += b.w[prev]
			right[b.y[prev]] -= b.w[prev]
			lw += b.w[prev]
			rw -= b.w[prev]

			lo, hi := b.X.At(prev, f), b.X.At(order[pos], f)
			if hi <= lo {
				continue
			}
			if pos < dt.minSamplesLeaf || len(order)-pos < dt.minSamplesLeaf {
				continue
			}

			childImp := (lw*b.impurity(left, lw) + rw*b.impurity(right, rw)) / total
			if childImp < best.impurity-1e-12 {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = split{
					feature:   f,
					threshold: threshold,
					pos:       pos,
					impurity:  childImp,
					order:     append(best.order[:0], order...),
				}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) classCountsInto(dst []float64, idx []int) ([]float64, float64) {
	for k := range dst {
		dst[k] = 0
	}
	var total float64
	for _, i := range idx {
		dst[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return dst, total
}

func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *node {
	n := &dt.nodes[0]
	for n.Feature != leafFeature {
		if X.At(i, n.Feature) <= n.Threshold {
			n = &dt.nodes[n.Left]
		} else {
			n = &dt.nodes[n.Right]
		}
	}
	return n
}

func (dt *DecisionTreeClassifier) checkPredict(op string, X mat.Matrix) (int, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", op); err != nil {
		return 0, err
	}
	rows, cols, err := model.CheckX("DecisionTreeClassifier."+op, X)
	if err != nil {
		return 0, err
	}
	if err := dt.state.RequireFeatures("DecisionTreeClassifier."+op, cols); err != nil {
		return 0, err
	}
	return rows, nil
}

// PredictProba returns the class fractions of the leaf each sample falls in.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := dt.checkPredict("PredictProba", X)
	if err != nil {
		return nil, err
	}
	proba := mat.NewDense(rows, dt.nClasses_, nil)
	for i := 0; i < rows; i++ {
		proba.SetRow(i, dt.leaf(X, i).Value)
	}
	return proba, nil
}

// Predict returns the majority class of the leaf each sample falls in.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, errors.Wrap(err, "DecisionTreeClassifier.Predict")
	}
	return model.ArgmaxRows(proba, dt.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// GetFeatureImportances returns impurity-decrease importances summing to 1,
// or all zeros when the tree is a single leaf. Nil before Fit.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if !dt.state.IsFitted() {
		return nil
	}
	return append([]float64(nil), dt.featureImportances_...)
}

// FeatureImportances implements model.FeatureImportancer.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.depth_ }

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int { return dt.nLeaves_ }

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool { return dt.state.IsFitted() }

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates hyperparameters. Unknown keys are rejected.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = s
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, err := model.ToInt(key, value)
			if err != nil {
				return err
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			case "max_features":
				dt.maxFeatures = v
			}
		case "random_state":
			v, err := model.ToInt(key, value)
			if err != nil {
				return err
			}
			dt.randomState = int64(v)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validateParams()
}

// treeState is the gob representation of a DecisionTreeClassifier.
type treeState struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64

	Fitted      bool
	Nodes       []node
	Classes     []int
	NFeatures   int
	Importances []float64
	Depth       int
	NLeaves     int
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	st := treeState{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Fitted:          dt.state.IsFitted(),
		Nodes:           dt.nodes,
		Classes:         dt.classes_,
		NFeatures:       dt.nFeatures_,
		Importances:     dt.featureImportances_,
		Depth:           dt.depth_,
		NLeaves:         dt.nLeaves_,
	}
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "encode decision tree")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var st treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "decode decision tree")
	}
	dt.state = model.NewStateManager()
	dt.criterion = st.Criterion
	dt.maxDepth = st.MaxDepth
	dt.minSamplesSplit = st.MinSamplesSplit
	dt.minSamplesLeaf = st.MinSamplesLeaf
	dt.maxFeatures = st.MaxFeatures
	dt.randomState = st.RandomState
	dt.nodes = st.Nodes
	dt.classes_ = st.Classes
	dt.nClasses_ = len(st.Classes)
	dt.nFeatures_ = st.NFeatures
	dt.featureImportances_ = st.Importances
	dt.depth_ = st.Depth
	dt.nLeaves_ = st.NLeaves
	if st.Fitted {
		dt.state.SetDimensions(st.NFeatures, 0)
		dt.state.SetFitted()
	}
	return nil
}
