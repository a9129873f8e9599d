// Package preprocessing provides feature-scaling transformers that can sit
// as non-terminal stages in a pipeline.
package preprocessing

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// StandardScaler standardizes features to zero mean and unit variance.
// The mean and scale are learned from the data seen by Fit only, so a
// scaler fit on a training partition never carries information about a
// held-out partition.
type StandardScaler struct {
	state *model.StateManager

	// Hyperparameters
	withMean bool
	withStd  bool

	// Learned parameters
	mean_  []float64
	scale_ []float64
}

// NewStandardScaler creates a StandardScaler. withMean controls centering,
// withStd controls scaling by the standard deviation.
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		withMean: withMean,
		withStd:  withStd,
	}
}

// NewStandardScalerDefault creates a StandardScaler with both centering and
// scaling enabled.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit learns the per-feature mean and standard deviation. y is ignored.
func (s *StandardScaler) Fit(X, _ mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError("StandardScaler.Fit", "empty data")
	}

	mean := make([]float64, c)
	scale := make([]float64, c)

	if s.withMean {
		for j := 0; j < c; j++ {
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			mean[j] = sum / float64(r)
		}
	}

	if s.withStd {
		for j := 0; j < c; j++ {
			sumSquares := 0.0
			for i := 0; i < r; i++ {
				diff := X.At(i, j) - mean[j]
				sumSquares += diff * diff
			}
			scale[j] = math.Sqrt(sumSquares / float64(r))
			// Constant features would divide by zero.
			if scale[j] < 1e-8 {
				scale[j] = 1.0
			}
		}
	} else {
		for j := 0; j < c; j++ {
			scale[j] = 1.0
		}
	}

	s.mean_ = mean
	s.scale_ = scale
	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform standardizes X using the statistics learned by Fit.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.state.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	nFeatures, _ := s.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", nFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.mean_[j])/s.scale_[j])
		}
	}
	return result, nil
}

// FitTransform fits on X and returns the transformed X.
func (s *StandardScaler) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X, y); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized data back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.state.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	r, c := X.Dims()
	nFeatures, _ := s.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", nFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, X.At(i, j)*s.scale_[j]+s.mean_[j])
		}
	}
	return result, nil
}

// Mean returns the per-feature means learned by Fit, or nil before Fit.
func (s *StandardScaler) Mean() []float64 {
	if s.mean_ == nil {
		return nil
	}
	out := make([]float64, len(s.mean_))
	copy(out, s.mean_)
	return out
}

// Scale returns the per-feature scales learned by Fit, or nil before Fit.
func (s *StandardScaler) Scale() []float64 {
	if s.scale_ == nil {
		return nil
	}
	out := make([]float64, len(s.scale_))
	copy(out, s.scale_)
	return out
}

// GetParams returns the scaler's hyperparameters.
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.withMean,
		"with_std":  s.withStd,
	}
}

// SetParams reconfigures the scaler. Unknown names are rejected.
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for name, value := range params {
		switch name {
		case "with_mean":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(name, "expected bool", value)
			}
			s.withMean = v
		case "with_std":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(name, "expected bool", value)
			}
			s.withStd = v
		default:
			return errors.NewValidationError(name, "unknown parameter for StandardScaler", value)
		}
	}
	return nil
}

// Clone returns a fresh unfitted scaler with the same hyperparameters.
func (s *StandardScaler) Clone() interface{} {
	return NewStandardScaler(s.withMean, s.withStd)
}

// standardScalerState is the serialized learned-parameter form.
type standardScalerState struct {
	Mean      []float64
	Scale     []float64
	NFeatures int
}

// ExportState serializes the learned mean and scale.
func (s *StandardScaler) ExportState() ([]byte, error) {
	if !s.state.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "ExportState")
	}
	nFeatures, _ := s.state.GetDimensions()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(standardScalerState{
		Mean:      s.mean_,
		Scale:     s.scale_,
		NFeatures: nFeatures,
	}); err != nil {
		return nil, errors.Wrap(err, "StandardScaler.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState.
func (s *StandardScaler) ImportState(data []byte) error {
	var st standardScalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "StandardScaler.ImportState")
	}
	s.mean_ = st.Mean
	s.scale_ = st.Scale
	s.state.SetDimensions(st.NFeatures, 0)
	s.state.SetFitted()
	return nil
}

// String returns a readable description of the scaler.
func (s *StandardScaler) String() string {
	if !s.state.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.withMean, s.withStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.withMean, s.withStd, nFeatures)
}

// MinMaxScaler rescales features into a fixed range, [0, 1] by default.
type MinMaxScaler struct {
	state *model.StateManager

	// Hyperparameters
	featureRange [2]float64

	// Learned parameters
	dataMin_ []float64
	scale_   []float64 // data max minus data min, clamped away from zero
}

// NewMinMaxScaler creates a MinMaxScaler targeting the given output range.
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		featureRange: featureRange,
	}
}

// NewMinMaxScalerDefault creates a MinMaxScaler targeting [0, 1].
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit learns the per-feature minimum and range. y is ignored.
func (m *MinMaxScaler) Fit(X, _ mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError("MinMaxScaler.Fit", "empty data")
	}
	if m.featureRange[1] <= m.featureRange[0] {
		return errors.NewConfigurationError("MinMaxScaler", "feature range max must exceed min")
	}

	dataMin := make([]float64, c)
	scale := make([]float64, c)
	for j := 0; j < c; j++ {
		lo, hi := X.At(0, j), X.At(0, j)
		for i := 1; i < r; i++ {
			v := X.At(i, j)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		dataMin[j] = lo
		scale[j] = hi - lo
		// Constant features map to the range minimum.
		if scale[j] < 1e-8 {
			scale[j] = 1.0
		}
	}

	m.dataMin_ = dataMin
	m.scale_ = scale
	m.state.SetDimensions(c, r)
	m.state.SetFitted()
	return nil
}

// Transform rescales X using the statistics learned by Fit.
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "Transform")
	}

	r, c := X.Dims()
	nFeatures, _ := m.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.Transform", nFeatures, c, 1)
	}

	span := m.featureRange[1] - m.featureRange[0]
	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			std := (X.At(i, j) - m.dataMin_[j]) / m.scale_[j]
			result.Set(i, j, std*span+m.featureRange[0])
		}
	}
	return result, nil
}

// FitTransform fits on X and returns the transformed X.
func (m *MinMaxScaler) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X, y); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform maps rescaled data back to the original range.
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "InverseTransform")
	}

	r, c := X.Dims()
	nFeatures, _ := m.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.InverseTransform", nFeatures, c, 1)
	}

	span := m.featureRange[1] - m.featureRange[0]
	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			std := (X.At(i, j) - m.featureRange[0]) / span
			result.Set(i, j, std*m.scale_[j]+m.dataMin_[j])
		}
	}
	return result, nil
}

// GetParams returns the scaler's hyperparameters.
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.featureRange,
	}
}

// SetParams reconfigures the scaler. Unknown names are rejected.
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for name, value := range params {
		switch name {
		case "feature_range":
			v, ok := value.([2]float64)
			if !ok {
				return errors.NewValidationError(name, "expected [2]float64", value)
			}
			m.featureRange = v
		default:
			return errors.NewValidationError(name, "unknown parameter for MinMaxScaler", value)
		}
	}
	return nil
}

// Clone returns a fresh unfitted scaler with the same hyperparameters.
func (m *MinMaxScaler) Clone() interface{} {
	return NewMinMaxScaler(m.featureRange)
}

// minMaxScalerState is the serialized learned-parameter form.
type minMaxScalerState struct {
	DataMin   []float64
	Scale     []float64
	NFeatures int
}

// ExportState serializes the learned minimum and range.
func (m *MinMaxScaler) ExportState() ([]byte, error) {
	if !m.state.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "ExportState")
	}
	nFeatures, _ := m.state.GetDimensions()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(minMaxScalerState{
		DataMin:   m.dataMin_,
		Scale:     m.scale_,
		NFeatures: nFeatures,
	}); err != nil {
		return nil, errors.Wrap(err, "MinMaxScaler.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState.
func (m *MinMaxScaler) ImportState(data []byte) error {
	var st minMaxScalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "MinMaxScaler.ImportState")
	}
	m.dataMin_ = st.DataMin
	m.scale_ = st.Scale
	m.state.SetDimensions(st.NFeatures, 0)
	m.state.SetFitted()
	return nil
}

// String returns a readable description of the scaler.
func (m *MinMaxScaler) String() string {
	if !m.state.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])",
			m.featureRange[0], m.featureRange[1])
	}
	nFeatures, _ := m.state.GetDimensions()
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_features=%d)",
		m.featureRange[0], m.featureRange[1], nFeatures)
}
