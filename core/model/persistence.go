package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// SaveModel はモデルをgob形式でファイルに保存する
//
// 一時ファイルに書き込んでからリネームするため、途中で失敗しても
// 既存のファイルは壊れない
//
// 使用例:
//
//	forest := ensemble.NewRandomForestClassifier()
//	// ... モデルの学習 ...
//	err := model.SaveModel(forest, "random_forest.gob")
func SaveModel(model interface{}, filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if err := SaveModelToWriter(model, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return errors.Wrapf(err, "failed to move model to %s", filename)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var forest ensemble.RandomForestClassifier
//	err := model.LoadModel(&forest, "random_forest.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
