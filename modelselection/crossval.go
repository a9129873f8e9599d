package modelselection

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/dataset"
	"github.com/goml-dev/modelselect/pkg/errors"
	"github.com/goml-dev/modelselect/pkg/log"
)

// Factory constructs a fresh, unfitted estimator or pipeline. Cross-
// validation invokes it once per fold so no learned state is ever shared
// between folds. Grid search supplies factories that also apply a
// configuration to the fresh instance.
type Factory func() (model.Estimator, error)

// CVResult holds the ordered per-fold outcome of a cross-validation run.
// Scores appear in fold order regardless of the completion order of
// parallel workers.
type CVResult struct {
	// TestScores has one validation score per fold.
	TestScores []float64

	// TrainScores has one training score per fold when requested, nil
	// otherwise.
	TrainScores []float64

	// Models holds the fitted per-fold estimators when requested, nil
	// otherwise.
	Models []model.Estimator
}

// MeanScore returns the mean of the validation scores.
func (r *CVResult) MeanScore() float64 {
	if len(r.TestScores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.TestScores {
		sum += s
	}
	return sum / float64(len(r.TestScores))
}

// StdScore returns the sample standard deviation of the validation scores.
func (r *CVResult) StdScore() float64 {
	if len(r.TestScores) <= 1 {
		return 0
	}
	mean := r.MeanScore()
	sumSq := 0.0
	for _, s := range r.TestScores {
		diff := s - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(r.TestScores)-1))
}

type cvConfig struct {
	returnTrainScores bool
	returnModels      bool
	parallelism       int
	logger            log.Logger
}

// CVOption configures a cross-validation run.
type CVOption func(*cvConfig)

// WithReturnTrainScores also computes each fold's score on its own
// training partition.
func WithReturnTrainScores() CVOption {
	return func(c *cvConfig) {
		c.returnTrainScores = true
	}
}

// WithReturnModels retains each fold's fitted estimator for inspection.
func WithReturnModels() CVOption {
	return func(c *cvConfig) {
		c.returnModels = true
	}
}

// WithParallelism bounds the number of folds evaluated concurrently. The
// default is the number of CPUs.
func WithParallelism(n int) CVOption {
	return func(c *cvConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithCVLogger sets the logger for per-fold progress.
func WithCVLogger(logger log.Logger) CVOption {
	return func(c *cvConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// CrossValidate estimates generalization performance by fitting a fresh
// estimator on each fold's training partition and scoring it on the held-
// out partition.
//
// Folds are evaluated concurrently, each fold touching only its own
// estimator instance and its own row subsets of the read-only dataset.
// If any fold's fit or score fails (including a panic inside the
// estimator), the whole evaluation fails with a FoldExecutionError for the
// lowest-indexed failing fold; no partial result is returned.
func CrossValidate(ctx context.Context, factory Factory, ds *dataset.Dataset, splitter Splitter, opts ...CVOption) (*CVResult, error) {
	if factory == nil {
		return nil, errors.NewConfigurationError("CrossValidate", "estimator factory is required")
	}
	if ds == nil {
		return nil, errors.NewConfigurationError("CrossValidate", "dataset is required")
	}
	cfg := cvConfig{
		parallelism: runtime.NumCPU(),
		logger:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	folds, err := splitter.Split(ds.X(), ds.Y())
	if err != nil {
		return nil, err
	}
	nFolds := len(folds)

	result := &CVResult{
		TestScores: make([]float64, nFolds),
	}
	if cfg.returnTrainScores {
		result.TrainScores = make([]float64, nFolds)
	}
	if cfg.returnModels {
		result.Models = make([]model.Estimator, nFolds)
	}

	cfg.logger.Debug("cross-validation started",
		log.OperationKey, "cross_validate",
		log.FoldsKey, nFolds,
		log.SamplesKey, ds.NumSamples(),
		log.FeaturesKey, ds.NumFeatures(),
	)

	// Index-addressed error and score slices keep the output in fold
	// order no matter when each worker finishes.
	foldErrs := make([]error, nFolds)
	sem := make(chan struct{}, cfg.parallelism)
	var wg sync.WaitGroup

	for foldIdx := range folds {
		if err := ctx.Err(); err != nil {
			foldErrs[foldIdx] = err
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			foldErrs[idx] = errors.SafeExecute("fold evaluation", func() error {
				return evaluateFold(factory, ds, folds[idx], idx, &cfg, result)
			})
		}(foldIdx)
	}
	wg.Wait()

	for idx, err := range foldErrs {
		if err != nil {
			return nil, errors.NewFoldExecutionError(idx, err)
		}
	}
	return result, nil
}

// evaluateFold runs one fold's fit and score cycle on its own fresh
// estimator instance.
func evaluateFold(factory Factory, ds *dataset.Dataset, fold Fold, idx int, cfg *cvConfig, result *CVResult) error {
	est, err := factory()
	if err != nil {
		return errors.Wrap(err, "estimator factory")
	}

	trainDS, err := ds.Subset(fold.TrainIndices)
	if err != nil {
		return err
	}
	testDS, err := ds.Subset(fold.TestIndices)
	if err != nil {
		return err
	}

	if err := est.Fit(trainDS.X(), trainDS.Y()); err != nil {
		return errors.Wrap(err, "fit")
	}
	score, err := est.Score(testDS.X(), testDS.Y())
	if err != nil {
		return errors.Wrap(err, "score")
	}
	result.TestScores[idx] = score

	if cfg.returnTrainScores {
		trainScore, err := est.Score(trainDS.X(), trainDS.Y())
		if err != nil {
			return errors.Wrap(err, "train score")
		}
		result.TrainScores[idx] = trainScore
	}
	if cfg.returnModels {
		result.Models[idx] = est
	}

	cfg.logger.Debug("fold evaluated",
		log.OperationKey, "cross_validate",
		log.FoldKey, idx,
		"test_score", score,
	)
	return nil
}
