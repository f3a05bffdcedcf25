package model

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ModelWeights は線形分類器の重みを表す構造体（シリアライゼーション用）
//
// 二値分類では Coefficients は1行、one-vs-rest ではクラスごとに1行を持つ
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegression等）
	ModelType string `json:"model_type"`

	// Version はモデルのバージョン（互換性チェック用）
	Version string `json:"version"`

	// Coefficients は重み係数（行: 決定関数, 列: 特徴量）
	Coefficients [][]float64 `json:"coefficients"`

	// Intercepts は決定関数ごとの切片
	Intercepts []float64 `json:"intercepts"`

	// Classes は学習時に観測したクラスラベル（昇順）
	Classes []int `json:"classes"`

	// Features は特徴量の名前（オプション）
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は追加のメタデータ（学習時の統計、チェックサム等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(mw, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal weights")
	}
	return data, nil
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, mw); err != nil {
		return errors.Wrap(err, "failed to unmarshal weights")
	}
	return nil
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.New("model_type is required")
	}

	if mw.Version == "" {
		return errors.New("version is required")
	}

	if !mw.IsFitted {
		if len(mw.Coefficients) > 0 {
			return errors.New("unfitted model should not have coefficients")
		}
		return nil
	}

	if len(mw.Coefficients) == 0 {
		return errors.New("fitted model must have coefficients")
	}

	if len(mw.Intercepts) != len(mw.Coefficients) {
		return errors.Newf("expected %d intercepts, got %d", len(mw.Coefficients), len(mw.Intercepts))
	}

	nFeatures := len(mw.Coefficients[0])
	for i, row := range mw.Coefficients {
		if len(row) != nFeatures {
			return errors.Newf("coefficient row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	if len(mw.Features) > 0 && len(mw.Features) != nFeatures {
		return errors.Newf("expected %d feature names, got %d", nFeatures, len(mw.Features))
	}

	// 二値分類は1行、多クラス分類はクラス数と同じ行数
	wantRows := len(mw.Classes)
	if wantRows == 2 {
		wantRows = 1
	}
	if len(mw.Coefficients) != wantRows {
		return errors.Newf("%d classes require %d coefficient rows, got %d", len(mw.Classes), wantRows, len(mw.Coefficients))
	}

	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		IsFitted:        mw.IsFitted,
		Coefficients:    make([][]float64, len(mw.Coefficients)),
		Intercepts:      append([]float64(nil), mw.Intercepts...),
		Classes:         append([]int(nil), mw.Classes...),
		Features:        append([]string(nil), mw.Features...),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}

	for i, row := range mw.Coefficients {
		clone.Coefficients[i] = append([]float64(nil), row...)
	}

	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}

	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}

	return clone
}
