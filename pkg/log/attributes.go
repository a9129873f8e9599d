package log

// Standard attribute keys. Using a fixed vocabulary keeps evaluation logs
// filterable across components.

// Model and operation context.
const (
	// ModelNameKey identifies the estimator or pipeline type.
	ModelNameKey = "model.name"

	// OperationKey names the operation: "fit", "predict", "transform",
	// "score", "split", "cross_validate", "grid_search".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package performing the operation.
	ComponentKey = "ml.component"
)

// Data shape.
const (
	// SamplesKey is the number of rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// ClassesKey is the number of distinct label values.
	ClassesKey = "data.classes"
)

// Cross-validation and search context.
const (
	// FoldKey is the zero-based index of the fold being evaluated.
	FoldKey = "cv.fold"

	// FoldsKey is the total number of folds.
	FoldsKey = "cv.folds"

	// ConfigKey is the zero-based index of a grid configuration in
	// expansion order.
	ConfigKey = "search.config"

	// ConfigsKey is the total number of grid configurations.
	ConfigsKey = "search.configs"

	// MeanScoreKey is the mean validation score of a configuration.
	MeanScoreKey = "search.mean_score"

	// StdScoreKey is the standard deviation of validation scores.
	StdScoreKey = "search.std_score"
)

// Performance.
const (
	// DurationMsKey is the wall-clock duration of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"
)
