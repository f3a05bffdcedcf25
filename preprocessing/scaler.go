// Package preprocessing provides feature scalers fitted on training data and
// applied unchanged to held-out data.
package preprocessing

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Scaler は学習済みの統計量で特徴量を変換し、元に戻せる変換器
type Scaler interface {
	model.Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

// Scaler kinds accepted by NewScaler.
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// NewScaler は名前からスケーラーを作成する ("standard" / "minmax")
func NewScaler(kind string) (Scaler, error) {
	switch strings.ToLower(kind) {
	case ScalerStandard, "":
		return NewStandardScalerDefault(), nil
	case ScalerMinMax:
		return NewMinMaxScalerDefault(), nil
	default:
		return nil, errors.NewValidationError("scaler", "must be one of standard, minmax", kind)
	}
}

// constantTol 以下の標準偏差・範囲は定数列とみなしスケール1を使う
const constantTol = 1e-8

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する。標準偏差は母標準偏差 (ddof=0)
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各特徴量の平均値 (WithMean=false なら 0)
	Mean []float64

	// Scale は各特徴量の標準偏差 (WithStd=false または定数列なら 1)
	Scale []float64

	// Var は各特徴量の分散
	Var []float64

	// NFeatures は特徴量の数
	NFeatures int

	// NSamplesSeen は学習に使ったサンプル数
	NSamplesSeen int

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XTrainScaled, err := scaler.FitTransform(XTrain)
//	XTestScaled, err := scaler.Transform(XTest)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから列ごとの平均と母標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c, err := model.CheckX("StandardScaler.Fit", X)
	if err != nil {
		return err
	}

	s.NFeatures = c
	s.NSamplesSeen = r
	s.Mean = make([]float64, c)
	s.Var = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Var[j] = variance
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			if std := math.Sqrt(variance); std >= constantTol {
				s.Scale[j] = std
			}
		}
	}

	s.SetFitted()
	return nil
}

func (s *StandardScaler) check(method string, X mat.Matrix) (int, int, error) {
	if !s.IsFitted() {
		return 0, 0, errors.NewNotFittedError("StandardScaler", method)
	}
	if X == nil {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "StandardScaler.%s: X is nil", method)
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return 0, 0, errors.NewDimensionError("StandardScaler."+method, s.NFeatures, c, 1)
	}
	return r, c, nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	r, c, err := s.check("Transform", X)
	if err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	r, c, err := s.check("InverseTransform", X)
	if err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams updates with_mean / with_std. The scaler must be refitted.
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		b, ok := v.(bool)
		if !ok {
			return errors.NewValidationError(k, "must be a bool", v)
		}
		switch k {
		case "with_mean":
			s.WithMean = b
		case "with_std":
			s.WithStd = b
		default:
			return errors.NewValidationError(k, "unknown parameter for StandardScaler", v)
		}
	}
	s.Reset()
	return nil
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}

// MinMaxScaler はscikit-learn互換のMin-Maxスケーラー
// データを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	model.BaseEstimator

	// DataMin, DataMax は学習データの列ごとの最小値・最大値
	DataMin []float64
	DataMax []float64

	// Scale は各特徴量の範囲 (max - min)。定数列は 1
	Scale []float64

	// NFeatures は特徴量の数
	NFeatures int

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}
	r, c, err := model.CheckX("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}

	m.NFeatures = c
	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)

	for j := 0; j < c; j++ {
		lo, hi := X.At(0, j), X.At(0, j)
		for i := 1; i < r; i++ {
			lo = math.Min(lo, X.At(i, j))
			hi = math.Max(hi, X.At(i, j))
		}
		m.DataMin[j] = lo
		m.DataMax[j] = hi
		m.Scale[j] = hi - lo
		if m.Scale[j] < constantTol {
			m.Scale[j] = 1.0
		}
	}

	m.SetFitted()
	return nil
}

func (m *MinMaxScaler) check(method string, X mat.Matrix) (int, int, error) {
	if !m.IsFitted() {
		return 0, 0, errors.NewNotFittedError("MinMaxScaler", method)
	}
	if X == nil {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "MinMaxScaler.%s: X is nil", method)
	}
	r, c := X.Dims()
	if c != m.NFeatures {
		return 0, 0, errors.NewDimensionError("MinMaxScaler."+method, m.NFeatures, c, 1)
	}
	return r, c, nil
}

// Transform は学習済みの統計情報を使ってデータをスケーリングする
//
//	X_scaled = (X - data_min) / (data_max - data_min) * (max - min) + min
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	r, c, err := m.check("Transform", X)
	if err != nil {
		return nil, err
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.DataMin[j])/m.Scale[j]*width + m.FeatureRange[0]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	r, c, err := m.check("InverseTransform", X)
	if err != nil {
		return nil, err
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.FeatureRange[0])/width*m.Scale[j] + m.DataMin[j]
	}, X)
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	if !m.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])",
			m.FeatureRange[0], m.FeatureRange[1])
	}
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_features=%d)",
		m.FeatureRange[0], m.FeatureRange[1], m.NFeatures)
}
