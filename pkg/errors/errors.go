// Package errors provides the structured error taxonomy for modelselect.
//
// Every error produced by the library falls into one of a small number of
// typed categories (invalid input, not fitted, invalid configuration,
// insufficient samples, fold execution failure, exhausted search) so that
// callers can branch on error kind with errors.As while still getting a
// human-readable message carrying enough context to locate the failure.
// Constructors attach stack traces via cockroachdb/errors, and the main
// types implement zerolog's ObjectMarshaler for structured log output.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Invalid-input errors (malformed or mismatched data shapes)
//
// ===========================================================================

// DimensionError reports a mismatch between an expected and an actual
// dimension of the input data.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("modelselect: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a new DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is malformed or out of range,
// for example an empty feature matrix or a label column that is not n×1.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("modelselect: %s: %s", e.Op, e.Message)
}

// NewValueError creates a new ValueError with a stack trace.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// IsInvalidInput reports whether err belongs to the invalid-input family
// (DimensionError or ValueError).
func IsInvalidInput(err error) bool {
	var dim *DimensionError
	var val *ValueError
	return errors.As(err, &dim) || errors.As(err, &val)
}

// ===========================================================================
//
//	Lifecycle errors
//
// ===========================================================================

// NotFittedError reports use of Transform, Predict or Score before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("modelselect: %s: this estimator is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a new NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Configuration errors (fail fast, before any fitting begins)
//
// ===========================================================================

// ConfigurationError reports a structurally invalid pipeline, parameter grid
// or fold count. These errors are raised at construction or expansion time,
// never in the middle of an evaluation.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("modelselect: %s: invalid configuration: %s", e.Component, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("reason", e.Reason).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a new ConfigurationError with a stack trace.
func NewConfigurationError(component, reason string) error {
	err := &ConfigurationError{Component: component, Reason: reason}
	return errors.WithStack(err)
}

// ValidationError reports a hyperparameter that failed validation, for
// example an unknown parameter name passed to SetParams.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("modelselect: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a new ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Cross-validation and search errors
//
// ===========================================================================

// InsufficientSamplesError reports a class with fewer members than the
// requested number of folds, which makes a stratified split impossible.
type InsufficientSamplesError struct {
	Class string
	Count int
	Folds int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("modelselect: class %s has only %d samples, but %d folds were requested", e.Class, e.Count, e.Folds)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *InsufficientSamplesError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("class", e.Class).
		Int("count", e.Count).
		Int("folds", e.Folds).
		Str("type", "InsufficientSamplesError")
}

// NewInsufficientSamplesError creates a new InsufficientSamplesError with a
// stack trace.
func NewInsufficientSamplesError(class string, count, folds int) error {
	err := &InsufficientSamplesError{Class: class, Count: count, Folds: folds}
	return errors.WithStack(err)
}

// FoldExecutionError wraps a failure during one fold's fit or score. It
// carries the fold index so the failure can be located without re-running.
type FoldExecutionError struct {
	FoldIndex int
	Err       error
}

func (e *FoldExecutionError) Error() string {
	return fmt.Sprintf("modelselect: fold %d failed: %v", e.FoldIndex, e.Err)
}

func (e *FoldExecutionError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *FoldExecutionError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("fold", e.FoldIndex).
		AnErr("cause", e.Err).
		Str("type", "FoldExecutionError")
}

// NewFoldExecutionError wraps err as a failure of the given fold.
func NewFoldExecutionError(foldIndex int, err error) error {
	foldErr := &FoldExecutionError{FoldIndex: foldIndex, Err: err}
	return errors.WithStack(foldErr)
}

// SearchExhaustedError reports a hyperparameter search in which every grid
// configuration failed. Causes holds the per-configuration failures in
// expansion order.
type SearchExhaustedError struct {
	NumConfigs int
	Causes     []error
}

func (e *SearchExhaustedError) Error() string {
	return fmt.Sprintf("modelselect: all %d grid configurations failed; first failure: %v", e.NumConfigs, e.firstCause())
}

func (e *SearchExhaustedError) firstCause() error {
	for _, c := range e.Causes {
		if c != nil {
			return c
		}
	}
	return nil
}

func (e *SearchExhaustedError) Unwrap() error {
	return e.firstCause()
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *SearchExhaustedError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("num_configs", e.NumConfigs).
		AnErr("first_cause", e.firstCause()).
		Str("type", "SearchExhaustedError")
}

// NewSearchExhaustedError creates a new SearchExhaustedError with a stack
// trace.
func NewSearchExhaustedError(numConfigs int, causes []error) error {
	err := &SearchExhaustedError{NumConfigs: numConfigs, Causes: causes}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData is returned when an empty matrix or vector is supplied.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a linear solve hits a singular
	// or badly conditioned matrix.
	ErrSingularMatrix = New("singular matrix")
)
