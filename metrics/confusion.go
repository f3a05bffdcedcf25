package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// intLabels は n×1 行列を整数ラベルに変換する
func intLabels(op string, y mat.Matrix) ([]int, error) {
	r, _ := y.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, errors.NewValueError(op, "labels must be integers")
		}
		out[i] = int(v)
	}
	return out, nil
}

func labelPair(op string, yTrue, yPred mat.Matrix) ([]int, []int, error) {
	if yTrue == nil || yPred == nil {
		return nil, nil, errors.NewValueError(op, "nil matrix")
	}
	rt, ct := yTrue.Dims()
	rp, cp := yPred.Dims()
	if rt == 0 || ct == 0 || rp == 0 || cp == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if rt != rp {
		return nil, nil, errors.NewDimensionError(op, rt, rp, 0)
	}
	t, err := intLabels(op, yTrue)
	if err != nil {
		return nil, nil, err
	}
	p, err := intLabels(op, yPred)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// UniqueLabels returns the sorted union of the labels found in ys.
func UniqueLabels(ys ...[]int) []int {
	seen := make(map[int]struct{})
	for _, y := range ys {
		for _, v := range y {
			seen[v] = struct{}{}
		}
	}
	labels := make([]int, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	return labels
}

// ConfusionMatrix は混同行列を計算する
//
// 行が正解ラベル、列が予測ラベルで、順序は両者に現れたラベルの昇順。
// 全要素の和はサンプル数と一致する。
func ConfusionMatrix(yTrue, yPred mat.Matrix) (*mat.Dense, []int, error) {
	t, p, err := labelPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}

	labels := UniqueLabels(t, p)
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range t {
		r, c := pos[t[i]], pos[p[i]]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, labels, nil
}

// ClassScores holds per-label precision, recall, F1 and support.
type ClassScores struct {
	Labels    []int
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
}

// PrecisionRecallFScoreSupport computes per-label scores over the sorted
// union of labels. A ratio with a zero denominator is set to 0 and an
// UndefinedMetricWarning is raised once per metric.
func PrecisionRecallFScoreSupport(yTrue, yPred mat.Matrix) (*ClassScores, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	k := len(labels)
	s := &ClassScores{
		Labels:    labels,
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]int, k),
	}

	var precUndefined, recUndefined bool
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		predicted := mat.Sum(cm.ColView(i))
		actual := mat.Sum(cm.RowView(i))
		s.Support[i] = int(actual)

		if predicted == 0 {
			precUndefined = true
		}
		if actual == 0 {
			recUndefined = true
		}
		s.Precision[i] = errors.SafeDivide(tp, predicted)
		s.Recall[i] = errors.SafeDivide(tp, actual)
		s.F1[i] = errors.SafeDivide(2*s.Precision[i]*s.Recall[i], s.Precision[i]+s.Recall[i])
	}

	if precUndefined {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision", "no predicted samples in some labels", 0))
	}
	if recUndefined {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall", "no true samples in some labels", 0))
	}
	return s, nil
}
