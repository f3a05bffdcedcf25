// Package metrics implements classification metrics: accuracy, AUC, log
// loss, confusion matrices and a scikit-learn style classification report.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)


// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 || yPred.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary は yTrue が 0/1 のみで構成されていることを確認する
func checkBinary(op string, yTrue *mat.VecDense) error {
	for i := 0; i < yTrue.Len(); i++ {
		v := yTrue.AtVec(i)
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "yTrue must contain only binary labels (0 or 1)")
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyMatrix は n×1 行列形式のラベルに対して正解率を計算する
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("AccuracyMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(t, p)
}

// ClassificationError は誤分類率 (1 - accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ClassificationError", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	wrong := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) != yPred.AtVec(i) {
			wrong++
		}
	}
	return float64(wrong) / float64(n), nil
}

// AUC はROC曲線下面積を Mann-Whitney U 統計量として計算する
//
// 同じスコアには平均順位を割り当てる。片方のクラスしか存在しない場合は
// 定義できないため 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	var nPos, nNeg int
	var rankSumPos float64
	for start := 0; start < n; {
		end := start + 1
		for end < n && yScore.AtVec(idx[end]) == yScore.AtVec(idx[start]) {
			end++
		}
		// 順位は1始まり、同順位は平均
		avgRank := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				nPos++
				rankSumPos += avgRank
			} else {
				nNeg++
			}
		}
		start = end
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}

	u := rankSumPos - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, s, err := columnPair("AUCMatrix", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

// BinaryLogLoss は二値分類の平均対数損失を計算する
//
// 予測確率は [eps, 1-eps] にクリップされる
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		// StabilizeLog が log(0) を 1e-15 で止める
		p := errors.ClipValue(yProb.AtVec(i), 0, 1)
		if yTrue.AtVec(i) == 1 {
			sum -= errors.StabilizeLog(p)
		} else {
			sum -= errors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n), nil
}

// columnPair は2つの行列の先頭列をVecDenseとして取り出す
func columnPair(op string, a, b mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	if a == nil || b == nil {
		return nil, nil, errors.NewValueError(op, "nil matrix")
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra == 0 || ca == 0 || rb == 0 || cb == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if ra != rb {
		return nil, nil, errors.NewDimensionError(op, ra, rb, 0)
	}
	return column(a), column(b), nil
}

func column(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}
