// Package neighbors provides centroid-based classification.
package neighbors

import (
	"bytes"
	"encoding/gob"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/metrics"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// NearestCentroid classifies each sample by the label of the closest class
// centroid in euclidean distance. Fitting is a single pass over the data
// with no randomness, which makes the classifier fully deterministic.
//
// With a positive shrink threshold the per-class centroids are soft-
// thresholded toward the global centroid, removing features whose class
// deviation is small.
type NearestCentroid struct {
	state *model.StateManager

	// Hyperparameters
	shrinkThreshold float64

	// Learned parameters
	classes_   []float64
	centroids_ *mat.Dense // one row per class, in classes_ order
}

// Option configures a NearestCentroid at construction.
type Option func(*NearestCentroid)

// WithShrinkThreshold enables centroid shrinkage toward the global centroid
// by the given non-negative amount. Zero disables shrinkage.
func WithShrinkThreshold(threshold float64) Option {
	return func(nc *NearestCentroid) {
		nc.shrinkThreshold = threshold
	}
}

// NewNearestCentroid creates a NearestCentroid classifier.
func NewNearestCentroid(opts ...Option) *NearestCentroid {
	nc := &NearestCentroid{
		state: model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(nc)
	}
	return nc
}

// Fit computes one centroid per class. y is required.
func (nc *NearestCentroid) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewValueError("NearestCentroid.Fit", "empty feature matrix")
	}
	if y == nil {
		return errors.NewValueError("NearestCentroid.Fit", "y is required for classification")
	}
	ry, cy := y.Dims()
	if ry != rows {
		return errors.NewDimensionError("NearestCentroid.Fit", rows, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("NearestCentroid.Fit", "y must be a column vector")
	}
	if nc.shrinkThreshold < 0 {
		return errors.NewValidationError("shrink_threshold", "must be non-negative", nc.shrinkThreshold)
	}

	// Classes keep first-appearance order so fitting is order independent
	// for a fixed set of rows and deterministic across runs.
	classIndex := make(map[float64]int)
	var classes []float64
	counts := make([]int, 0)
	for i := 0; i < rows; i++ {
		label := y.At(i, 0)
		if _, ok := classIndex[label]; !ok {
			classIndex[label] = len(classes)
			classes = append(classes, label)
			counts = append(counts, 0)
		}
	}

	centroids := mat.NewDense(len(classes), cols, nil)
	for i := 0; i < rows; i++ {
		k := classIndex[y.At(i, 0)]
		counts[k]++
		for j := 0; j < cols; j++ {
			centroids.Set(k, j, centroids.At(k, j)+X.At(i, j))
		}
	}
	for k := range classes {
		for j := 0; j < cols; j++ {
			centroids.Set(k, j, centroids.At(k, j)/float64(counts[k]))
		}
	}

	if nc.shrinkThreshold > 0 {
		nc.shrink(X, centroids, rows, cols)
	}

	nc.classes_ = classes
	nc.centroids_ = centroids
	nc.state.SetDimensions(cols, rows)
	nc.state.SetFitted()
	return nil
}

// shrink soft-thresholds each centroid's deviation from the global mean.
func (nc *NearestCentroid) shrink(X mat.Matrix, centroids *mat.Dense, rows, cols int) {
	global := make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += X.At(i, j)
		}
		global[j] = sum / float64(rows)
	}

	nClasses, _ := centroids.Dims()
	for k := 0; k < nClasses; k++ {
		for j := 0; j < cols; j++ {
			dev := centroids.At(k, j) - global[j]
			mag := math.Abs(dev) - nc.shrinkThreshold
			if mag < 0 {
				mag = 0
			}
			centroids.Set(k, j, global[j]+math.Copysign(mag, dev))
		}
	}
}

// Predict returns the label of the nearest centroid for each row of X.
func (nc *NearestCentroid) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !nc.state.IsFitted() {
		return nil, errors.NewNotFittedError("NearestCentroid", "Predict")
	}
	rows, cols := X.Dims()
	nFeatures, _ := nc.state.GetDimensions()
	if cols != nFeatures {
		return nil, errors.NewDimensionError("NearestCentroid.Predict", nFeatures, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		bestDist := math.Inf(1)
		for k := range nc.classes_ {
			dist := 0.0
			for j := 0; j < cols; j++ {
				diff := X.At(i, j) - nc.centroids_.At(k, j)
				dist += diff * diff
			}
			if dist < bestDist {
				bestDist = dist
				best = k
			}
		}
		predictions.Set(i, 0, nc.classes_[best])
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given data.
func (nc *NearestCentroid) Score(X, y mat.Matrix) (float64, error) {
	if !nc.state.IsFitted() {
		return 0, errors.NewNotFittedError("NearestCentroid", "Score")
	}
	yPred, err := nc.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, yPred)
}

// Classes returns the class labels in the order of their first appearance
// in the training data, or nil before Fit.
func (nc *NearestCentroid) Classes() []float64 {
	if nc.classes_ == nil {
		return nil
	}
	out := make([]float64, len(nc.classes_))
	copy(out, nc.classes_)
	return out
}

// Centroids returns a copy of the learned centroids, one row per class, or
// nil before Fit.
func (nc *NearestCentroid) Centroids() *mat.Dense {
	if nc.centroids_ == nil {
		return nil
	}
	r, c := nc.centroids_.Dims()
	out := mat.NewDense(r, c, nil)
	out.Copy(nc.centroids_)
	return out
}

// GetParams returns the classifier's hyperparameters.
func (nc *NearestCentroid) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"shrink_threshold": nc.shrinkThreshold,
	}
}

// SetParams reconfigures the classifier. Unknown names are rejected.
func (nc *NearestCentroid) SetParams(params map[string]interface{}) error {
	for name, value := range params {
		switch name {
		case "shrink_threshold":
			v, ok := value.(float64)
			if !ok {
				return errors.NewValidationError(name, "expected float64", value)
			}
			if v < 0 {
				return errors.NewValidationError(name, "must be non-negative", value)
			}
			nc.shrinkThreshold = v
		default:
			return errors.NewValidationError(name, "unknown parameter for NearestCentroid", value)
		}
	}
	return nil
}

// Clone returns a fresh unfitted classifier with the same hyperparameters.
func (nc *NearestCentroid) Clone() interface{} {
	return NewNearestCentroid(WithShrinkThreshold(nc.shrinkThreshold))
}

// nearestCentroidState is the serialized learned-parameter form.
type nearestCentroidState struct {
	Classes   []float64
	Centroids []float64
	NFeatures int
}

// ExportState serializes the learned classes and centroids.
func (nc *NearestCentroid) ExportState() ([]byte, error) {
	if !nc.state.IsFitted() {
		return nil, errors.NewNotFittedError("NearestCentroid", "ExportState")
	}
	nFeatures, _ := nc.state.GetDimensions()
	raw := nc.centroids_.RawMatrix()
	data := make([]float64, len(raw.Data))
	copy(data, raw.Data)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(nearestCentroidState{
		Classes:   nc.Classes(),
		Centroids: data,
		NFeatures: nFeatures,
	}); err != nil {
		return nil, errors.Wrap(err, "NearestCentroid.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState.
func (nc *NearestCentroid) ImportState(data []byte) error {
	var st nearestCentroidState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "NearestCentroid.ImportState")
	}
	if len(st.Classes) == 0 || st.NFeatures == 0 {
		return errors.NewValueError("NearestCentroid.ImportState", "empty serialized state")
	}
	nc.classes_ = st.Classes
	nc.centroids_ = mat.NewDense(len(st.Classes), st.NFeatures, st.Centroids)
	nc.state.SetDimensions(st.NFeatures, 0)
	nc.state.SetFitted()
	return nil
}
