// Package linear_model provides an L2-regularised logistic regression
// classifier with L-BFGS and gradient descent solvers.
package linear_model

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

const (
	modelName     = "LogisticRegression"
	weightVersion = "1.0.0"

	SolverLBFGS = "lbfgs"
	SolverGD    = "gd"

	PenaltyL2   = "l2"
	PenaltyNone = "none"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
//
// The fitted objective for each binary problem is
//
//	mean_i logloss(y_i, w·x_i + b) + ||w||² / (2·C·n)
//
// which has the same minimiser as scikit-learn's C·Σ logloss + ||w||²/2.
// The intercept is not penalised. Multiclass problems are solved one-vs-rest.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	solver       string  // Solver: "lbfgs", "gd"
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance on the gradient max-norm

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     []int       // Actual iterations per class
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      PenaltyL2,
		C:            1.0,
		fitIntercept: true,
		solver:       SolverLBFGS,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

func (lr *LogisticRegression) validateParams() error {
	switch {
	case lr.penalty != PenaltyL2 && lr.penalty != PenaltyNone:
		return errors.NewValidationError("penalty", "must be l2 or none", lr.penalty)
	case lr.penalty == PenaltyL2 && !(lr.C > 0):
		return errors.NewValidationError("C", "must be positive", lr.C)
	case lr.solver != SolverLBFGS && lr.solver != SolverGD:
		return errors.NewValidationError("solver", "must be lbfgs or gd", lr.solver)
	case lr.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	case !(lr.tol > 0):
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.CheckXY("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	labels, classes, err := model.Labels("LogisticRegression.Fit", y)
	if err != nil {
		return err
	}
	if len(classes) < 2 {
		return errors.Wrapf(errors.ErrSingleClass, "LogisticRegression.Fit: got only class %d", classes[0])
	}

	start := time.Now()
	lr.state.Reset()
	lr.classes_ = classes
	lr.nClasses_ = len(classes)
	lr.nFeatures_ = nFeatures

	// 二値分類は正クラス (classes_[1]) の1問題、多クラスは one-vs-rest
	positives := classes[1:]
	if lr.nClasses_ > 2 {
		positives = classes
	}
	lr.coef_ = make([][]float64, len(positives))
	lr.intercept_ = make([]float64, len(positives))
	lr.nIter_ = make([]int, len(positives))

	Xd := mat.DenseCopyOf(X)
	target := make([]float64, nSamples)
	for k, positive := range positives {
		for i, l := range labels {
			target[i] = 0
			if l == positive {
				target[i] = 1
			}
		}
		w, b, iters, err := lr.fitBinary(Xd, target)
		if err != nil {
			return errors.NewModelError("LogisticRegression.Fit", fmt.Sprintf("class %d", positive), err)
		}
		lr.coef_[k] = w
		lr.intercept_[k] = b
		lr.nIter_[k] = iters
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	log.GetLoggerWithName("linear_model").Debug("LogisticRegression fitted",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, lr.nClasses_,
		log.IterationKey, lr.nIter_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// objective evaluates the binary loss and its gradient. params holds the
// coefficients followed, when fitIntercept is set, by the intercept.
type objective struct {
	X       *mat.Dense
	y       []float64
	alpha   float64 // 1 / (C·n), 0 without penalty
	nFeat   int
	withInt bool

	z []float64
}

func (o *objective) linear(params []float64) {
	n := len(o.y)
	w := mat.NewVecDense(o.nFeat, params[:o.nFeat])
	zv := mat.NewVecDense(n, o.z)
	zv.MulVec(o.X, w)
	if o.withInt {
		b := params[o.nFeat]
		for i := range o.z {
			o.z[i] += b
		}
	}
}

func (o *objective) Func(params []float64) float64 {
	o.linear(params)
	loss := 0.0
	for i, z := range o.z {
		// log(1+exp(z)) - y·z
		loss += -errors.LogSigmoid(-z) - o.y[i]*z
	}
	loss /= float64(len(o.y))
	w := params[:o.nFeat]
	return loss + 0.5*o.alpha*floats.Dot(w, w)
}

func (o *objective) Grad(grad, params []float64) {
	o.linear(params)
	n := float64(len(o.y))
	residual := make([]float64, len(o.y))
	for i, z := range o.z {
		residual[i] = (errors.Sigmoid(z) - o.y[i]) / n
	}
	gw := mat.NewVecDense(o.nFeat, grad[:o.nFeat])
	gw.MulVec(o.X.T(), mat.NewVecDense(len(residual), residual))
	floats.AddScaled(grad[:o.nFeat], o.alpha, params[:o.nFeat])
	if o.withInt {
		grad[o.nFeat] = floats.Sum(residual)
	}
}

// fitBinary solves one binary problem with 0/1 targets.
func (lr *LogisticRegression) fitBinary(X *mat.Dense, target []float64) ([]float64, float64, int, error) {
	nSamples, nFeatures := X.Dims()
	obj := &objective{
		X:       X,
		y:       target,
		nFeat:   nFeatures,
		withInt: lr.fitIntercept,
		z:       make([]float64, nSamples),
	}
	if lr.penalty == PenaltyL2 {
		obj.alpha = 1.0 / (lr.C * float64(nSamples))
	}

	nParams := nFeatures
	if lr.fitIntercept {
		nParams++
	}
	params := make([]float64, nParams)

	var iters int
	var converged bool
	switch lr.solver {
	case SolverGD:
		iters, converged = lr.gradientDescent(obj, params)
	default:
		var err error
		iters, converged, err = lr.lbfgs(obj, params)
		if err != nil {
			return nil, 0, 0, err
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning(lr.solver, iters,
			"increase the number of iterations (max_iter) or scale the data"))
	}
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", params, iters); err != nil {
		return nil, 0, iters, err
	}

	w := append([]float64(nil), params[:nFeatures]...)
	b := 0.0
	if lr.fitIntercept {
		b = params[nFeatures]
	}
	return w, b, iters, nil
}

func (lr *LogisticRegression) lbfgs(obj *objective, params []float64) (int, bool, error) {
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
	}
	settings := &optimize.Settings{
		MajorIterations:   lr.maxIter,
		GradientThreshold: lr.tol,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, params, settings, &optimize.LBFGS{})
	if result == nil {
		return 0, false, errors.Wrap(err, "lbfgs")
	}
	copy(params, result.X)

	iters := result.Stats.MajorIterations
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.Success:
		return iters, true, nil
	case optimize.IterationLimit:
		return iters, false, nil
	}
	// 直線探索の失敗などは最良点を採用し、未収束として扱う
	if err != nil {
		log.GetLoggerWithName("linear_model").Debug("lbfgs stopped early",
			"status", result.Status.String(), log.ErrAttrKey, err)
	}
	return iters, false, nil
}

// gradientDescent minimises obj with a decaying step size and stops when the
// gradient max-norm falls below tol.
func (lr *LogisticRegression) gradientDescent(obj *objective, params []float64) (int, bool) {
	const baseLearningRate = 1.0
	grad := make([]float64, len(params))
	for iter := 0; iter < lr.maxIter; iter++ {
		obj.Grad(grad, params)
		if floats.Norm(grad, math.Inf(1)) < lr.tol {
			return iter, true
		}
		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		floats.AddScaled(params, -learningRate, grad)
	}
	obj.Grad(grad, params)
	return lr.maxIter, floats.Norm(grad, math.Inf(1)) < lr.tol
}

func (lr *LogisticRegression) checkPredict(op string, X mat.Matrix) (int, error) {
	if err := lr.state.RequireFitted(modelName, op); err != nil {
		return 0, err
	}
	rows, cols, err := model.CheckX(modelName+"."+op, X)
	if err != nil {
		return 0, err
	}
	if err := lr.state.RequireFeatures(modelName+"."+op, cols); err != nil {
		return 0, err
	}
	return rows, nil
}

// DecisionFunction returns w·x + b for every sample: n×1 for binary problems
// (positive values favour classes_[1]) and n×k for one-vs-rest.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	rows, err := lr.checkPredict("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	k := len(lr.coef_)
	coef := mat.NewDense(k, lr.nFeatures_, nil)
	for c, row := range lr.coef_ {
		coef.SetRow(c, row)
	}
	scores := mat.NewDense(rows, k, nil)
	scores.Mul(X, coef.T())
	scores.Apply(func(i, j int, v float64) float64 {
		return v + lr.intercept_[j]
	}, scores)
	return scores, nil
}

// PredictProba returns probability estimates for each class. For
// one-vs-rest the per-class sigmoids are normalised to sum to 1.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	rows, _ := scores.Dims()
	probas := mat.NewDense(rows, lr.nClasses_, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < rows; i++ {
			p1 := errors.Sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
		}
		return probas, nil
	}

	row := make([]float64, lr.nClasses_)
	for i := 0; i < rows; i++ {
		for c := range row {
			row[c] = errors.Sigmoid(scores.At(i, c))
		}
		sum := floats.Sum(row)
		for c := range row {
			probas.Set(i, c, errors.SafeDivide(row[c], sum))
		}
	}
	return probas, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	rows, _ := scores.Dims()
	if lr.nClasses_ == 2 {
		predictions := mat.NewDense(rows, 1, nil)
		for i := 0; i < rows; i++ {
			c := lr.classes_[0]
			if scores.At(i, 0) > 0 {
				c = lr.classes_[1]
			}
			predictions.Set(i, 0, float64(c))
		}
		return predictions, nil
	}
	return model.ArgmaxRows(scores, lr.classes_), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, predictions)
}

// Coef returns a copy of the coefficients, one row per decision function.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for i, row := range lr.coef_ {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Intercept returns a copy of the intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// NIter returns the iterations used per decision function.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter_...)
}

// IsFitted returns whether the model has been fitted
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "penalty", "solver":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if key == "penalty" {
				lr.penalty = s
			} else {
				lr.solver = s
			}
		case "C", "tol":
			v, err := model.ToFloat(key, value)
			if err != nil {
				return err
			}
			if key == "C" {
				lr.C = v
			} else {
				lr.tol = v
			}
		case "fit_intercept":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			lr.fitIntercept = b
		case "max_iter":
			v, err := model.ToInt(key, value)
			if err != nil {
				return err
			}
			lr.maxIter = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return lr.validateParams()
}

func (lr *LogisticRegression) checksum() string {
	data, _ := json.Marshal(struct {
		C [][]float64
		I []float64
	}{lr.coef_, lr.intercept_})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ExportWeights はモデルの重みをエクスポート（完全な再現性を保証）
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted(modelName, "ExportWeights"); err != nil {
		return nil, err
	}
	nFeatures, nSamples := lr.state.GetDimensions()
	weights := &model.ModelWeights{
		ModelType:       modelName,
		Version:         weightVersion,
		Coefficients:    lr.Coef(),
		Intercepts:      lr.Intercept(),
		Classes:         lr.Classes(),
		IsFitted:        true,
		Hyperparameters: lr.GetParams(),
		Metadata: map[string]interface{}{
			"n_features": nFeatures,
			"n_samples":  nSamples,
			"n_iter":     lr.NIter(),
			"checksum":   lr.checksum(),
		},
	}
	return weights, nil
}

// ImportWeights はモデルの重みをインポート（完全な再現性を保証）
func (lr *LogisticRegression) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("LogisticRegression.ImportWeights", "weights cannot be nil")
	}
	if weights.ModelType != modelName {
		return errors.NewValueError("LogisticRegression.ImportWeights",
			fmt.Sprintf("model type mismatch: expected %s, got %s", modelName, weights.ModelType))
	}
	if err := weights.Validate(); err != nil {
		return errors.Wrap(err, "LogisticRegression.ImportWeights")
	}
	if err := lr.SetParams(weights.Hyperparameters); err != nil {
		return err
	}

	lr.coef_ = weights.Clone().Coefficients
	lr.intercept_ = append([]float64(nil), weights.Intercepts...)
	lr.classes_ = append([]int(nil), weights.Classes...)
	lr.nClasses_ = len(lr.classes_)
	lr.nFeatures_ = len(lr.coef_[0])
	lr.nIter_ = make([]int, len(lr.coef_))

	// チェックサムを検証
	if want, ok := weights.Metadata["checksum"].(string); ok && want != lr.checksum() {
		lr.state.Reset()
		return errors.NewValueError("LogisticRegression.ImportWeights", "checksum mismatch: weights may be corrupted")
	}

	nSamples := 0
	if v, ok := weights.Metadata["n_samples"].(float64); ok {
		nSamples = int(v)
	} else if v, ok := weights.Metadata["n_samples"].(int); ok {
		nSamples = v
	}
	lr.state.SetDimensions(lr.nFeatures_, nSamples)
	lr.state.SetFitted()
	return nil
}

// GetWeightHash calculates the hash value of weights (for verification)
func (lr *LogisticRegression) GetWeightHash() string {
	if !lr.state.IsFitted() {
		return ""
	}
	return lr.checksum()
}

// String returns a scikit-learn style representation.
func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, penalty=%s, solver=%s, max_iter=%d)",
		lr.C, lr.penalty, lr.solver, lr.maxIter)
}

// logisticState is the gob representation of a LogisticRegression.
type logisticState struct {
	Penalty      string
	C            float64
	FitIntercept bool
	Solver       string
	MaxIter      int
	Tol          float64

	Fitted    bool
	Coef      [][]float64
	Intercept []float64
	Classes   []int
	NFeatures int
	NSamples  int
	NIter     []int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	nFeatures, nSamples := lr.state.GetDimensions()
	st := logisticState{
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		Solver:       lr.solver,
		MaxIter:      lr.maxIter,
		Tol:          lr.tol,
		Fitted:       lr.state.IsFitted(),
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Classes:      lr.classes_,
		NFeatures:    nFeatures,
		NSamples:     nSamples,
		NIter:        lr.nIter_,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, errors.Wrap(err, "encode logistic regression")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var st logisticState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "decode logistic regression")
	}
	lr.state = model.NewStateManager()
	lr.penalty = st.Penalty
	lr.C = st.C
	lr.fitIntercept = st.FitIntercept
	lr.solver = st.Solver
	lr.maxIter = st.MaxIter
	lr.tol = st.Tol
	lr.coef_ = st.Coef
	lr.intercept_ = st.Intercept
	lr.classes_ = st.Classes
	lr.nClasses_ = len(st.Classes)
	lr.nFeatures_ = st.NFeatures
	lr.nIter_ = st.NIter
	if st.Fitted {
		lr.state.SetDimensions(st.NFeatures, st.NSamples)
		lr.state.SetFitted()
	}
	return nil
}
