// Package model defines the estimator contracts shared by every learner and
// transformer in heartml, together with fitted-state bookkeeping and
// persistence helpers.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は n×1 のラベル列
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う。戻り値は n×1
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy on the given test data and labels.
	Score(X, y mat.Matrix) (float64, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Fitter
	Predictor
	Scorer

	// PredictProba returns an n×k matrix of class probabilities whose
	// columns follow Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted unique classes seen during fitting.
	Classes() []int
}

// FeatureImportancer is implemented by models that expose impurity-based
// feature importances normalised to sum to 1.
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
