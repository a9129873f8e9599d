// Package linear provides ordinary least squares regression.
package linear

import (
	"bytes"
	"encoding/gob"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/core/parallel"
	"github.com/goml-dev/modelselect/metrics"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// Regression is an ordinary least squares linear regressor. The coefficients
// are found by a QR-based least squares solve, so no explicit normal-
// equation inverse is formed.
type Regression struct {
	state *model.StateManager

	// Hyperparameters
	fitIntercept bool

	// Learned parameters
	coef_      *mat.VecDense
	intercept_ float64
}

// Option configures a Regression at construction.
type Option func(*Regression)

// WithFitIntercept controls whether an intercept term is estimated.
func WithFitIntercept(fit bool) Option {
	return func(r *Regression) {
		r.fitIntercept = fit
	}
}

// NewRegression creates a least squares regressor. The intercept is fit by
// default.
func NewRegression(opts ...Option) *Regression {
	r := &Regression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fit estimates the coefficients from X and y. y is required and must be an
// n×1 matrix.
func (r *Regression) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewValueError("Regression.Fit", "empty feature matrix")
	}
	if y == nil {
		return errors.NewValueError("Regression.Fit", "y is required for regression")
	}
	ry, cy := y.Dims()
	if ry != rows {
		return errors.NewDimensionError("Regression.Fit", rows, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("Regression.Fit", "y must be a column vector")
	}

	// Optionally prepend a ones column for the intercept.
	nCoef := cols
	if r.fitIntercept {
		nCoef++
	}
	design := mat.NewDense(rows, nCoef, nil)
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(rows, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			col := 0
			if r.fitIntercept {
				design.Set(i, 0, 1.0)
				col = 1
			}
			for j := 0; j < cols; j++ {
				design.Set(i, col+j, X.At(i, j))
			}
		}
	})

	yVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}

	var solution mat.VecDense
	if err := solution.SolveVec(design, yVec); err != nil {
		return errors.Wrap(errors.ErrSingularMatrix, "Regression.Fit")
	}

	coef := mat.NewVecDense(cols, nil)
	if r.fitIntercept {
		r.intercept_ = solution.AtVec(0)
		for j := 0; j < cols; j++ {
			coef.SetVec(j, solution.AtVec(j+1))
		}
	} else {
		r.intercept_ = 0
		coef.CopyVec(&solution)
	}
	r.coef_ = coef

	r.state.SetDimensions(cols, rows)
	r.state.SetFitted()
	return nil
}

// Predict returns the fitted linear function applied to each row of X.
func (r *Regression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.state.IsFitted() {
		return nil, errors.NewNotFittedError("Regression", "Predict")
	}
	rows, cols := X.Dims()
	nFeatures, _ := r.state.GetDimensions()
	if cols != nFeatures {
		return nil, errors.NewDimensionError("Regression.Predict", nFeatures, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		pred := r.intercept_
		for j := 0; j < cols; j++ {
			pred += X.At(i, j) * r.coef_.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Score returns the coefficient of determination R² on the given data.
func (r *Regression) Score(X, y mat.Matrix) (float64, error) {
	if !r.state.IsFitted() {
		return 0, errors.NewNotFittedError("Regression", "Score")
	}
	yPred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, yPred)
}

// Coef returns the learned coefficients, or nil before Fit.
func (r *Regression) Coef() []float64 {
	if r.coef_ == nil {
		return nil
	}
	out := make([]float64, r.coef_.Len())
	for i := range out {
		out[i] = r.coef_.AtVec(i)
	}
	return out
}

// Intercept returns the learned intercept.
func (r *Regression) Intercept() float64 {
	return r.intercept_
}

// GetParams returns the regressor's hyperparameters.
func (r *Regression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": r.fitIntercept,
	}
}

// SetParams reconfigures the regressor. Unknown names are rejected.
func (r *Regression) SetParams(params map[string]interface{}) error {
	for name, value := range params {
		switch name {
		case "fit_intercept":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(name, "expected bool", value)
			}
			r.fitIntercept = v
		default:
			return errors.NewValidationError(name, "unknown parameter for Regression", value)
		}
	}
	return nil
}

// Clone returns a fresh unfitted regressor with the same hyperparameters.
func (r *Regression) Clone() interface{} {
	return NewRegression(WithFitIntercept(r.fitIntercept))
}

// regressionState is the serialized learned-parameter form.
type regressionState struct {
	Coef      []float64
	Intercept float64
	NFeatures int
}

// ExportState serializes the learned coefficients and intercept.
func (r *Regression) ExportState() ([]byte, error) {
	if !r.state.IsFitted() {
		return nil, errors.NewNotFittedError("Regression", "ExportState")
	}
	nFeatures, _ := r.state.GetDimensions()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(regressionState{
		Coef:      r.Coef(),
		Intercept: r.intercept_,
		NFeatures: nFeatures,
	}); err != nil {
		return nil, errors.Wrap(err, "Regression.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState.
func (r *Regression) ImportState(data []byte) error {
	var st regressionState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "Regression.ImportState")
	}
	r.coef_ = mat.NewVecDense(len(st.Coef), st.Coef)
	r.intercept_ = st.Intercept
	r.state.SetDimensions(st.NFeatures, 0)
	r.state.SetFitted()
	return nil
}
