// Package model defines the capability contracts shared by every estimator
// and transformer in modelselect, together with fitted-state management and
// learned-parameter persistence.
//
// The contract is split into small single-method interfaces so pipelines
// and evaluators can require exactly the capabilities they use. Capability
// checks happen at pipeline construction, never in the middle of a fit.
package model

import "gonum.org/v1/gonum/mat"

// Fitter is an estimator that can learn from data. For supervised
// estimators y is an n×1 matrix of targets; unsupervised estimators and
// transformers accept a nil y. Each call to Fit fully replaces any
// previously learned parameters.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor produces one prediction per input row. It must be called only
// after Fit.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer computes a single summary metric for the given data. Continuous-
// target estimators default to R², categorical-target estimators to mean
// accuracy, and clustering estimators to the negative mean distance to the
// assigned center. Score never mutates learned parameters.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Estimator is the minimal contract required by cross-validation: the
// ability to fit on one partition and score on another.
type Estimator interface {
	Fitter
	Scorer
}

// Transformer is an estimator that maps a feature matrix to a new feature
// representation. Output row count equals input row count; the column count
// may differ. Transform uses only parameters learned during Fit.
type Transformer interface {
	Fitter
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X, y mat.Matrix) (mat.Matrix, error)
}

// Regressor is a supervised estimator producing continuous predictions.
type Regressor interface {
	Estimator
	Predictor
}

// Classifier is a supervised estimator producing categorical predictions.
type Classifier interface {
	Estimator
	Predictor

	// Classes returns the label values seen during fitting, in the order
	// of their first appearance.
	Classes() []float64
}

// Clusterer is an unsupervised estimator assigning rows to groups.
type Clusterer interface {
	Estimator
	Predictor

	// Centers returns the learned group centers, one row per group.
	Centers() *mat.Dense
}

// ParamGetter exposes an estimator's hyperparameters by name. Learned
// parameters are never included.
type ParamGetter interface {
	GetParams() map[string]interface{}
}

// ParamSetter reconfigures an estimator's hyperparameters before fitting.
// Implementations switch over their known parameter names explicitly and
// return a ValidationError for unknown names or ill-typed values.
type ParamSetter interface {
	SetParams(params map[string]interface{}) error
}

// Cloner produces a fresh, unfitted copy carrying the same hyperparameters.
// Cross-validation clones the estimator for every fold so learned state
// never leaks between folds.
type Cloner interface {
	Clone() interface{}
}

// Tunable is the contract hyperparameter search requires: a scoreable
// estimator whose configuration can be replaced on a fresh clone.
type Tunable interface {
	Estimator
	ParamSetter
	Cloner
}

// StateExporter serializes the learned parameters of a fitted estimator as
// an opaque blob, and restores them. Hyperparameters are not part of the
// blob; they belong to the constructing code.
type StateExporter interface {
	ExportState() ([]byte, error)
	ImportState(data []byte) error
}
