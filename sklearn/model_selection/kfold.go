package model_selection

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// Splitter defines interface for cross-validation splitters
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single fold in cross-validation
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomState int64) *KFold {
	if nSplits < 2 {
		nSplits = 5 // Default to 5-fold
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomState: randomState}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold. The first n % k folds
// receive one extra test sample.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplits("KFold", X, kf.NSplits)
	if err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomState), uint64(kf.RandomState)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assignment := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	current := 0
	for f := 0; f < kf.NSplits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, idx := range indices[current : current+size] {
			assignment[idx] = f
		}
		current += size
	}
	return buildFolds(assignment, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomState int64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomState: randomState}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// Samples are grouped by class (classes in ascending order) and dealt to the
// folds round-robin, continuing the rotation from one class to the next, so
// fold sizes differ by at most one and every class is spread evenly.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	if _, _, err := model.CheckXY("StratifiedKFold", X, y); err != nil {
		return nil, err
	}
	nSamples, err := checkSplits("StratifiedKFold", X, skf.NSplits)
	if err != nil {
		return nil, err
	}
	labels, classes, err := model.Labels("StratifiedKFold", y)
	if err != nil {
		return nil, err
	}

	pos := model.ClassIndex(classes)
	byClass := make([][]int, len(classes))
	for i, l := range labels {
		byClass[pos[l]] = append(byClass[pos[l]], i)
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(uint64(skf.RandomState), uint64(skf.RandomState)))
	}

	assignment := make([]int, nSamples)
	next := 0
	for k, members := range byClass {
		if len(members) < skf.NSplits {
			log.GetLoggerWithName("model_selection").Warn("least populated class has fewer members than n_splits",
				"class", classes[k], "members", len(members), "n_splits", skf.NSplits)
		}
		if r != nil {
			r.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
		}
		for _, idx := range members {
			assignment[idx] = next
			next = (next + 1) % skf.NSplits
		}
	}
	return buildFolds(assignment, skf.NSplits), nil
}

func checkSplits(op string, X mat.Matrix, nSplits int) (int, error) {
	nSamples, _, err := model.CheckX(op, X)
	if err != nil {
		return 0, err
	}
	if nSplits < 2 {
		return 0, errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if nSplits > nSamples {
		return 0, errors.NewValueError(op, "cannot have n_splits greater than the number of samples")
	}
	return nSamples, nil
}

// buildFolds turns a sample→fold assignment into folds whose train and test
// indices are both in ascending order.
func buildFolds(assignment []int, nSplits int) []Fold {
	folds := make([]Fold, nSplits)
	for idx, f := range assignment {
		for g := range folds {
			if g == f {
				folds[g].TestIndices = append(folds[g].TestIndices, idx)
			} else {
				folds[g].TrainIndices = append(folds[g].TrainIndices, idx)
			}
		}
	}
	return folds
}
