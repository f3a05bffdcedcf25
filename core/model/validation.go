package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// CheckX validates a feature matrix: non-nil, non-empty and free of NaN/Inf.
func CheckX(op string, X mat.Matrix) (rows, cols int, err error) {
	if X == nil {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "%s: X is nil", op)
	}
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "%s: X has shape (%d, %d)", op, rows, cols)
	}
	if err := errors.CheckMatrix(op, X, rows, cols, 0); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// CheckXY validates X with CheckX and checks that y is an n×1 label column
// with one row per sample.
func CheckXY(op string, X, y mat.Matrix) (rows, cols int, err error) {
	rows, cols, err = CheckX(op, X)
	if err != nil {
		return 0, 0, err
	}
	if y == nil {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "%s: y is nil", op)
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return 0, 0, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	return rows, cols, nil
}

// Labels converts an n×1 label column into integers and returns them with
// the sorted unique classes.
func Labels(op string, y mat.Matrix) (labels []int, classes []int, err error) {
	n, _ := y.Dims()
	labels = make([]int, n)
	seen := make(map[int]struct{})
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) || v != math.Trunc(v) {
			return nil, nil, errors.NewValueError(op, "class labels must be integers")
		}
		labels[i] = int(v)
		seen[labels[i]] = struct{}{}
	}
	classes = make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return labels, classes, nil
}

// ClassIndex maps each label to its position in classes.
func ClassIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// ArgmaxRows returns, for each row of proba, the class with the highest
// probability. Ties resolve to the first class.
func ArgmaxRows(proba mat.Matrix, classes []int) *mat.Dense {
	rows, cols := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}

// ToInt accepts the numeric types that arrive through SetParams maps.
func ToInt(param string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(param, "must be an integer", v)
		}
		return int(x), nil
	default:
		return 0, errors.NewValidationError(param, "must be an integer", v)
	}
}

// ToFloat accepts the numeric types that arrive through SetParams maps.
func ToFloat(param string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, errors.NewValidationError(param, "must be a number", v)
	}
}
