package preprocessing

import (
	"bytes"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

const tol = 1e-10

func TestStandardScaler_Fit(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
	})
	s := NewStandardScalerDefault()
	if err := s.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if math.Abs(s.Mean[0]-2) > tol || math.Abs(s.Mean[1]-10) > tol {
		t.Errorf("Mean = %v, want [2 10]", s.Mean)
	}
	// 母標準偏差: sqrt(2/3)
	if want := math.Sqrt(2.0 / 3.0); math.Abs(s.Scale[0]-want) > tol {
		t.Errorf("Scale[0] = %v, want %v", s.Scale[0], want)
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant column scale = %v, want 1", s.Scale[1])
	}

	got, err := s.Transform(X)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got.At(i, 1) != 0 {
			t.Errorf("constant column row %d = %v, want 0", i, got.At(i, 1))
		}
	}
	// 標準化後の列は平均0・母分散1
	col := mat.Col(nil, 0, got)
	sum, sq := 0.0, 0.0
	for _, v := range col {
		sum += v
		sq += v * v
	}
	if math.Abs(sum) > tol || math.Abs(sq/3-1) > tol {
		t.Errorf("scaled column mean=%v var=%v", sum/3, sq/3)
	}
}

func TestStandardScaler_TrainStatisticsOnly(t *testing.T) {
	train := mat.NewDense(2, 1, []float64{0, 2})
	test := mat.NewDense(1, 1, []float64{4})

	s := NewStandardScalerDefault()
	if _, err := s.FitTransform(train); err != nil {
		t.Fatal(err)
	}
	got, err := s.Transform(test)
	if err != nil {
		t.Fatal(err)
	}
	// mean 1, std 1
	if math.Abs(got.At(0, 0)-3) > tol {
		t.Errorf("Transform(test) = %v, want 3", got.At(0, 0))
	}
}

func TestStandardScaler_Options(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{2, 6})

	tests := []struct {
		name     string
		withMean bool
		withStd  bool
		want     []float64
	}{
		{"both", true, true, []float64{-1, 1}},
		{"mean only", true, false, []float64{-2, 2}},
		{"std only", false, true, []float64{1, 3}},
		{"neither", false, false, []float64{2, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScaler(tt.withMean, tt.withStd)
			got, err := s.FitTransform(X)
			if err != nil {
				t.Fatal(err)
			}
			for i, w := range tt.want {
				if math.Abs(got.At(i, 0)-w) > tol {
					t.Errorf("row %d = %v, want %v", i, got.At(i, 0), w)
				}
			}
		})
	}
}

func TestScalers_InverseTransform(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		63, 1, 145,
		37, 1, 130,
		41, 0, 130,
		56, 1, 120,
	})
	for _, kind := range []string{ScalerStandard, ScalerMinMax} {
		t.Run(kind, func(t *testing.T) {
			s, err := NewScaler(kind)
			if err != nil {
				t.Fatal(err)
			}
			scaled, err := s.FitTransform(X)
			if err != nil {
				t.Fatal(err)
			}
			back, err := s.InverseTransform(scaled)
			if err != nil {
				t.Fatal(err)
			}
			if !mat.EqualApprox(back, X, 1e-9) {
				t.Errorf("round trip mismatch:\n%v", mat.Formatted(back))
			}
		})
	}
}

func TestScalers_Errors(t *testing.T) {
	for _, kind := range []string{ScalerStandard, ScalerMinMax} {
		t.Run(kind, func(t *testing.T) {
			s, _ := NewScaler(kind)

			_, err := s.Transform(mat.NewDense(1, 2, nil))
			var nf *errors.NotFittedError
			if !errors.As(err, &nf) {
				t.Errorf("expected NotFittedError, got %v", err)
			}

			if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
				t.Fatal(err)
			}
			_, err = s.Transform(mat.NewDense(1, 3, nil))
			var de *errors.DimensionError
			if !errors.As(err, &de) {
				t.Errorf("expected DimensionError, got %v", err)
			}

			nan := mat.NewDense(2, 1, []float64{1, math.NaN()})
			if err := s.Fit(nan); err == nil {
				t.Error("expected error for NaN input")
			}
		})
	}

	if _, err := NewScaler("robust"); err == nil {
		t.Error("expected error for unknown scaler")
	}
}

func TestMinMaxScaler_Range(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})
	m := NewMinMaxScaler([2]float64{-1, 1})
	got, err := m.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-1, 0, 1}
	for i, w := range want {
		if math.Abs(got.At(i, 0)-w) > tol {
			t.Errorf("row %d = %v, want %v", i, got.At(i, 0), w)
		}
		if got.At(i, 1) != -1 {
			t.Errorf("constant column row %d = %v, want -1", i, got.At(i, 1))
		}
	}

	bad := NewMinMaxScaler([2]float64{1, 0})
	if err := bad.Fit(X); err == nil {
		t.Error("expected error for inverted feature range")
	}
}

func TestStandardScaler_SetParams(t *testing.T) {
	s := NewStandardScalerDefault()
	if err := s.Fit(mat.NewDense(2, 1, []float64{1, 3})); err != nil {
		t.Fatal(err)
	}
	if err := s.SetParams(map[string]interface{}{"with_mean": false}); err != nil {
		t.Fatal(err)
	}
	if s.WithMean || s.IsFitted() {
		t.Error("SetParams should update with_mean and reset fitted state")
	}
	if err := s.SetParams(map[string]interface{}{"copy": true}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestStandardScaler_Persistence(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 6})
	s := NewStandardScalerDefault()
	if err := s.Fit(X); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(s, &buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := &StandardScaler{}
	if err := model.LoadModelFromReader(loaded, &buf); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.IsFitted() {
		t.Fatal("loaded scaler should be fitted")
	}

	want, _ := s.Transform(X)
	got, err := loaded.Transform(X)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(got, want, tol) {
		t.Error("loaded scaler transforms differently")
	}
}
