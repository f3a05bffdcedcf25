// Package model_selection provides train/test splitting, k-fold splitters
// and parallel cross-validation.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Split is the result of TrainTestSplit.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.Dense

	// TrainIndices and TestIndices are row numbers into the original data.
	TrainIndices []int
	TestIndices  []int
}

type splitConfig struct {
	testSize    float64
	randomState uint64
	stratify    bool
	shuffle     bool
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTestSize sets the test fraction, in (0, 1).
func WithTestSize(f float64) SplitOption {
	return func(c *splitConfig) { c.testSize = f }
}

// WithRandomState seeds the shuffling.
func WithRandomState(seed int64) SplitOption {
	return func(c *splitConfig) { c.randomState = uint64(seed) }
}

// WithStratify preserves the class proportions of y in both partitions.
func WithStratify(on bool) SplitOption {
	return func(c *splitConfig) { c.stratify = on }
}

// WithShuffle toggles shuffling. Without it the last rows form the test set.
func WithShuffle(on bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = on }
}

// TrainTestSplit partitions the rows of X and y. The test set holds
// ceil(testSize*n) rows and the train set the rest.
//
// With stratification each class contributes to the test set in proportion
// to its frequency; fractional shares are resolved by largest remainder, so
// every class is represented within one sample of its exact share.
func TrainTestSplit(X, y mat.Matrix, opts ...SplitOption) (*Split, error) {
	cfg := splitConfig{testSize: 0.2, randomState: 42, shuffle: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, _, err := model.CheckXY("TrainTestSplit", X, y)
	if err != nil {
		return nil, err
	}
	trainIdx, testIdx, err := splitIndices(n, y, cfg)
	if err != nil {
		return nil, err
	}

	s := &Split{TrainIndices: trainIdx, TestIndices: testIdx}
	s.XTrain, s.YTrain = Subset(X, y, trainIdx)
	s.XTest, s.YTest = Subset(X, y, testIdx)
	return s, nil
}

func splitIndices(n int, y mat.Matrix, cfg splitConfig) (train, test []int, err error) {
	if !(cfg.testSize > 0 && cfg.testSize < 1) {
		return nil, nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", cfg.testSize)
	}
	nTest := int(math.Ceil(cfg.testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"test_size leaves an empty train or test set for this number of samples")
	}

	rng := rand.New(rand.NewPCG(cfg.randomState, cfg.randomState))

	if !cfg.stratify {
		perm := make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		if cfg.shuffle {
			rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
			return perm[nTest:], perm[:nTest], nil
		}
		return perm[:nTrain], perm[nTrain:], nil
	}

	if !cfg.shuffle {
		return nil, nil, errors.NewValidationError("shuffle", "stratified splitting requires shuffle", false)
	}

	labels, classes, err := model.Labels("TrainTestSplit", y)
	if err != nil {
		return nil, nil, err
	}
	byClass := make([][]int, len(classes))
	pos := model.ClassIndex(classes)
	for i, l := range labels {
		byClass[pos[l]] = append(byClass[pos[l]], i)
	}
	for _, members := range byClass {
		if len(members) < 2 {
			return nil, nil, errors.NewValueError("TrainTestSplit",
				"the least populated class in y has only 1 member, which is too few for stratification")
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"train and test sets must each hold at least one sample per class")
	}

	counts := make([]int, len(classes))
	for k, members := range byClass {
		counts[k] = len(members)
	}
	testPerClass := allocate(counts, nTest)

	for k, members := range byClass {
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		test = append(test, members[:testPerClass[k]]...)
		train = append(train, members[testPerClass[k]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocate distributes total draws across classes in proportion to counts
// using the largest remainder method. Ties go to the larger class, then to
// the lower class index.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]int, len(counts))
	type rem struct {
		k    int
		frac float64
	}
	rems := make([]rem, len(counts))
	assigned := 0
	for k, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		out[k] = int(math.Floor(exact))
		assigned += out[k]
		rems[k] = rem{k: k, frac: exact - float64(out[k])}
	}
	sort.SliceStable(rems, func(i, j int) bool {
		if rems[i].frac != rems[j].frac {
			return rems[i].frac > rems[j].frac
		}
		return counts[rems[i].k] > counts[rems[j].k]
	})
	for i := 0; assigned < total; i++ {
		k := rems[i%len(rems)].k
		if out[k] < counts[k] {
			out[k]++
			assigned++
		}
	}
	return out
}

// Subset copies the given rows of X and y into new dense matrices,
// preserving the order of indices.
func Subset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	_, yCols := y.Dims()
	xs := mat.NewDense(len(indices), xCols, nil)
	ys := mat.NewDense(len(indices), yCols, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xs.Set(i, j, X.At(idx, j))
		}
		for j := 0; j < yCols; j++ {
			ys.Set(i, j, y.At(idx, j))
		}
	}
	return xs, ys
}
