package study

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/metrics"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/preprocessing"
)

// scaledClassifier fits a new scaler on exactly the rows the classifier is
// trained on and applies it before every prediction. Cross-validation uses
// it so each fold is scaled with its own training statistics.
type scaledClassifier struct {
	kind   string
	scaler preprocessing.Scaler
	clf    model.Classifier
}

func (s *scaledClassifier) Fit(X, y mat.Matrix) error {
	scaler, err := preprocessing.NewScaler(s.kind)
	if err != nil {
		return err
	}
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		return err
	}
	s.scaler = scaler
	return s.clf.Fit(Xs, y)
}

func (s *scaledClassifier) transform(method string, X mat.Matrix) (mat.Matrix, error) {
	if s.scaler == nil {
		return nil, errors.NewNotFittedError("scaledClassifier", method)
	}
	return s.scaler.Transform(X)
}

func (s *scaledClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.transform("Predict", X)
	if err != nil {
		return nil, err
	}
	return s.clf.Predict(Xs)
}

func (s *scaledClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.transform("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return s.clf.PredictProba(Xs)
}

func (s *scaledClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := s.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

func (s *scaledClassifier) Classes() []int { return s.clf.Classes() }
