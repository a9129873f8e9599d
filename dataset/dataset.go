// Package dataset defines the immutable pairing of a feature matrix and an
// optional label vector that all evaluation components operate on.
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// Dataset holds an n×f feature matrix and, optionally, a length-n label
// vector. Labels may be categorical (class values) or continuous. A Dataset
// is read-only after construction; cross-validation workers share it
// without synchronization.
type Dataset struct {
	x *mat.Dense
	y *mat.VecDense // nil when unlabeled
}

// New validates and wraps the given features and labels. The data is copied
// so later mutation of the arguments cannot reach the Dataset. y may be nil
// for unlabeled data.
func New(x *mat.Dense, y *mat.VecDense) (*Dataset, error) {
	if x == nil {
		return nil, errors.NewValueError("dataset.New", "feature matrix is nil")
	}
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("dataset.New", "feature matrix is empty")
	}
	if y != nil && y.Len() != r {
		return nil, errors.NewDimensionError("dataset.New", r, y.Len(), 0)
	}

	xCopy := mat.NewDense(r, c, nil)
	xCopy.Copy(x)

	var yCopy *mat.VecDense
	if y != nil {
		yCopy = mat.NewVecDense(y.Len(), nil)
		yCopy.CopyVec(y)
	}
	return &Dataset{x: xCopy, y: yCopy}, nil
}

// FromSlices builds a labeled Dataset from row-major features and a label
// slice. labels may be nil.
func FromSlices(rows, cols int, features, labels []float64) (*Dataset, error) {
	if len(features) != rows*cols {
		return nil, errors.NewValueError("dataset.FromSlices", "features length does not match rows*cols")
	}
	x := mat.NewDense(rows, cols, features)
	var y *mat.VecDense
	if labels != nil {
		if len(labels) != rows {
			return nil, errors.NewDimensionError("dataset.FromSlices", rows, len(labels), 0)
		}
		y = mat.NewVecDense(rows, labels)
	}
	return New(x, y)
}

// X returns the feature matrix. Callers must treat it as read-only.
func (d *Dataset) X() mat.Matrix {
	return d.x
}

// Y returns the labels as an n×1 matrix, or nil for unlabeled data.
func (d *Dataset) Y() mat.Matrix {
	if d.y == nil {
		return nil
	}
	return d.y
}

// Labels returns a copy of the label values, or nil for unlabeled data.
func (d *Dataset) Labels() []float64 {
	if d.y == nil {
		return nil
	}
	out := make([]float64, d.y.Len())
	copy(out, d.y.RawVector().Data)
	return out
}

// NumSamples returns the number of rows.
func (d *Dataset) NumSamples() int {
	r, _ := d.x.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int {
	_, c := d.x.Dims()
	return c
}

// HasLabels reports whether the Dataset carries a label vector.
func (d *Dataset) HasLabels() bool {
	return d.y != nil
}

// Subset returns a new Dataset holding copies of the given rows, in the
// given order. It is how fold partitions are materialized.
func (d *Dataset) Subset(indices []int) (*Dataset, error) {
	if len(indices) == 0 {
		return nil, errors.NewValueError("Dataset.Subset", "no indices given")
	}
	n, c := d.x.Dims()
	x := mat.NewDense(len(indices), c, nil)
	var y *mat.VecDense
	if d.y != nil {
		y = mat.NewVecDense(len(indices), nil)
	}
	for i, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, errors.NewValueError("Dataset.Subset", "row index out of range")
		}
		x.SetRow(i, d.x.RawRowView(idx))
		if y != nil {
			y.SetVec(i, d.y.AtVec(idx))
		}
	}
	return &Dataset{x: x, y: y}, nil
}
