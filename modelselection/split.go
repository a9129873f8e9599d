// Package modelselection implements fold generation, cross-validation and
// grid search over hyperparameter configurations.
package modelselection

import (
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// Fold is one train/validation partition of a dataset's row indices. The
// two index sets are always disjoint.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// Splitter generates the fold sequence for a dataset. Implementations are
// pure: the same inputs always produce the same folds.
type Splitter interface {
	// Split generates train/test indices for each fold. y may be nil for
	// splitters that do not use labels.
	Split(X, y mat.Matrix) ([]Fold, error)

	// NumSplits returns the number of folds produced by Split.
	NumSplits() int
}

// KFold splits rows into k consecutive folds without regard to labels.
type KFold struct {
	nSplits int
	shuffle bool
	seed    uint64
}

// NewKFold creates a k-fold splitter. nSplits must be at least 2. With
// shuffle enabled the row order is permuted by a generator seeded from
// seed before folds are cut, so splits stay reproducible.
func NewKFold(nSplits int, shuffle bool, seed uint64) (*KFold, error) {
	if nSplits < 2 {
		return nil, errors.NewConfigurationError("KFold", "number of splits must be at least 2")
	}
	return &KFold{nSplits: nSplits, shuffle: shuffle, seed: seed}, nil
}

// NumSplits returns the number of folds.
func (kf *KFold) NumSplits() int {
	return kf.nSplits
}

// Split generates train/test indices for each fold. Test sets partition the
// row range: every row appears in exactly one test set.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if nSamples < kf.nSplits {
		return nil, errors.NewValueError("KFold.Split", "fewer samples than folds")
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.shuffle {
		rng := rand.New(rand.NewPCG(kf.seed, kf.seed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.nSplits)
	foldSize := nSamples / kf.nSplits
	remainder := nSamples % kf.nSplits

	cur := 0
	for i := 0; i < kf.nSplits; i++ {
		size := foldSize
		if i < remainder {
			size++
		}
		test := make([]int, size)
		copy(test, indices[cur:cur+size])
		folds[i] = Fold{TestIndices: test}
		cur += size
	}
	fillTrainSets(folds, nSamples)
	return folds, nil
}

// StratifiedKFold splits rows into k folds preserving the per-class label
// proportions: each fold's test set receives either ⌊c/k⌋ or ⌈c/k⌉ members
// of every class of size c.
type StratifiedKFold struct {
	nSplits int
	shuffle bool
	seed    uint64
}

// NewStratifiedKFold creates a stratified k-fold splitter. nSplits must be
// at least 2.
func NewStratifiedKFold(nSplits int, shuffle bool, seed uint64) (*StratifiedKFold, error) {
	if nSplits < 2 {
		return nil, errors.NewConfigurationError("StratifiedKFold", "number of splits must be at least 2")
	}
	return &StratifiedKFold{nSplits: nSplits, shuffle: shuffle, seed: seed}, nil
}

// NumSplits returns the number of folds.
func (skf *StratifiedKFold) NumSplits() int {
	return skf.nSplits
}

// Split generates stratified train/test indices for each fold. Every class
// must have at least nSplits members; a smaller class yields an
// InsufficientSamplesError and no fold output.
func (skf *StratifiedKFold) Split(_, y mat.Matrix) ([]Fold, error) {
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "labels are required for stratification")
	}
	nSamples, cy := y.Dims()
	if cy != 1 {
		return nil, errors.NewValueError("StratifiedKFold.Split", "y must be a column vector")
	}
	if nSamples == 0 {
		return nil, errors.NewValueError("StratifiedKFold.Split", "empty label vector")
	}

	// Group row indices by class. Classes keep first-appearance order so
	// the fold layout does not depend on map iteration order.
	classOrder := make([]float64, 0)
	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		if _, ok := classIndices[label]; !ok {
			classOrder = append(classOrder, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}

	// Validate before generating anything: a class smaller than the fold
	// count cannot appear in every fold.
	for _, label := range classOrder {
		if count := len(classIndices[label]); count < skf.nSplits {
			return nil, errors.NewInsufficientSamplesError(
				strconv.FormatFloat(label, 'g', -1, 64), count, skf.nSplits)
		}
	}

	if skf.shuffle {
		rng := rand.New(rand.NewPCG(skf.seed, skf.seed))
		for _, label := range classOrder {
			indices := classIndices[label]
			rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	// Deal each class's indices round-robin across the folds, so fold f
	// receives either ⌊c/k⌋ or ⌈c/k⌉ members of each class.
	folds := make([]Fold, skf.nSplits)
	for _, label := range classOrder {
		for j, idx := range classIndices[label] {
			f := j % skf.nSplits
			folds[f].TestIndices = append(folds[f].TestIndices, idx)
		}
	}
	fillTrainSets(folds, nSamples)
	return folds, nil
}

// fillTrainSets sets each fold's train indices to the complement of its
// test indices, in ascending row order.
func fillTrainSets(folds []Fold, nSamples int) {
	for i := range folds {
		inTest := make(map[int]bool, len(folds[i].TestIndices))
		for _, idx := range folds[i].TestIndices {
			inTest[idx] = true
		}
		train := make([]int, 0, nSamples-len(folds[i].TestIndices))
		for j := 0; j < nSamples; j++ {
			if !inTest[j] {
				train = append(train, j)
			}
		}
		folds[i].TrainIndices = train
	}
}
