package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// labelled returns a one-feature X whose value equals the row number and a
// label column with nZero zeros followed by nOne ones.
func labelled(nZero, nOne int) (*mat.Dense, *mat.Dense) {
	n := nZero + nOne
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i >= nZero {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func countLabels(y mat.Matrix) map[int]int {
	n, _ := y.Dims()
	counts := make(map[int]int)
	for i := 0; i < n; i++ {
		counts[int(y.At(i, 0))]++
	}
	return counts
}

func assertPartition(t *testing.T, n int, s *Split) {
	t.Helper()
	all := append(append([]int{}, s.TrainIndices...), s.TestIndices...)
	sort.Ints(all)
	require.Len(t, all, n)
	for i, idx := range all {
		assert.Equal(t, i, idx, "indices must cover every row exactly once")
	}
}

func TestTrainTestSplit_Sizes(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		testSize float64
		wantTest int
	}{
		{"exact", 10, 0.2, 2},
		{"rounds up", 303, 0.2, 61},
		{"quarter", 7, 0.25, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := labelled(tt.n/2, tt.n-tt.n/2)
			s, err := TrainTestSplit(X, y, WithTestSize(tt.testSize))
			require.NoError(t, err)
			assert.Len(t, s.TestIndices, tt.wantTest)
			assert.Len(t, s.TrainIndices, tt.n-tt.wantTest)
			assertPartition(t, tt.n, s)

			r, c := s.XTrain.Dims()
			assert.Equal(t, tt.n-tt.wantTest, r)
			assert.Equal(t, 1, c)
		})
	}
}

func TestTrainTestSplit_RowsFollowIndices(t *testing.T) {
	X, y := labelled(20, 20)
	s, err := TrainTestSplit(X, y, WithRandomState(7))
	require.NoError(t, err)

	for i, idx := range s.TrainIndices {
		assert.Equal(t, float64(idx), s.XTrain.At(i, 0))
		assert.Equal(t, y.At(idx, 0), s.YTrain.At(i, 0))
	}
	for i, idx := range s.TestIndices {
		assert.Equal(t, float64(idx), s.XTest.At(i, 0))
	}
}

func TestTrainTestSplit_NoShuffle(t *testing.T) {
	X, y := labelled(5, 5)
	s, err := TrainTestSplit(X, y, WithShuffle(false), WithTestSize(0.3))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, s.TrainIndices)
	assert.Equal(t, []int{7, 8, 9}, s.TestIndices)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	tests := []struct {
		name         string
		nZero, nOne  int
		wantTestZero int
		wantTestOne  int
	}{
		{"exact shares", 30, 70, 6, 14},
		{"heart proportions", 138, 165, 28, 33},
		{"balanced", 50, 50, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := labelled(tt.nZero, tt.nOne)
			s, err := TrainTestSplit(X, y, WithStratify(true), WithRandomState(42))
			require.NoError(t, err)
			assertPartition(t, tt.nZero+tt.nOne, s)

			test := countLabels(s.YTest)
			train := countLabels(s.YTrain)
			assert.Equal(t, tt.wantTestZero, test[0])
			assert.Equal(t, tt.wantTestOne, test[1])
			assert.Equal(t, tt.nZero-tt.wantTestZero, train[0])
			assert.Equal(t, tt.nOne-tt.wantTestOne, train[1])
		})
	}
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	X, y := labelled(40, 60)
	a, err := TrainTestSplit(X, y, WithStratify(true), WithRandomState(42))
	require.NoError(t, err)
	b, err := TrainTestSplit(X, y, WithStratify(true), WithRandomState(42))
	require.NoError(t, err)
	assert.Equal(t, a.TrainIndices, b.TrainIndices)
	assert.Equal(t, a.TestIndices, b.TestIndices)

	c, err := TrainTestSplit(X, y, WithStratify(true), WithRandomState(43))
	require.NoError(t, err)
	assert.NotEqual(t, a.TestIndices, c.TestIndices)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	X, y := labelled(5, 5)

	t.Run("test size out of range", func(t *testing.T) {
		for _, ts := range []float64{0, 1, -0.1, 1.5} {
			_, err := TrainTestSplit(X, y, WithTestSize(ts))
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "test_size=%v", ts)
		}
	})

	t.Run("stratify without shuffle", func(t *testing.T) {
		_, err := TrainTestSplit(X, y, WithStratify(true), WithShuffle(false))
		require.Error(t, err)
	})

	t.Run("singleton class", func(t *testing.T) {
		Xs, ys := labelled(9, 1)
		_, err := TrainTestSplit(Xs, ys, WithStratify(true))
		var ve *errors.ValueError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("test set smaller than class count", func(t *testing.T) {
		Xs, ys := labelled(3, 3)
		_, err := TrainTestSplit(Xs, ys, WithStratify(true), WithTestSize(0.1))
		require.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := TrainTestSplit(X, mat.NewDense(3, 1, nil))
		var de *errors.DimensionError
		assert.True(t, errors.As(err, &de))
	})
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int{28, 33}, allocate([]int{138, 165}, 61))
	assert.Equal(t, []int{1, 1, 1}, allocate([]int{3, 3, 3}, 3))
	got := allocate([]int{5, 3, 2}, 5)
	assert.Equal(t, 5, got[0]+got[1]+got[2])
	assert.Equal(t, []int{3, 1, 1}, got)
}
