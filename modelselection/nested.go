package modelselection

import (
	"context"
	"math"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/dataset"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// NestedCVResult is the outcome of nested cross-validation. The outer
// scores, not any inner search score, are the unbiased generalization
// estimate: each configuration was selected without seeing the partition
// it was finally scored on.
type NestedCVResult struct {
	// OuterScores has one held-out score per outer fold, in fold order.
	OuterScores []float64

	// BestParams holds the configuration the inner search selected
	// within each outer fold's training partition.
	BestParams []map[string]interface{}

	// Incomplete marks results whose inner searches were cancelled
	// mid-grid, making the selections possibly non-optimal.
	Incomplete bool
}

// MeanScore returns the mean outer score.
func (r *NestedCVResult) MeanScore() float64 {
	if len(r.OuterScores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.OuterScores {
		sum += s
	}
	return sum / float64(len(r.OuterScores))
}

// StdScore returns the sample standard deviation of the outer scores.
func (r *NestedCVResult) StdScore() float64 {
	if len(r.OuterScores) <= 1 {
		return 0
	}
	mean := r.MeanScore()
	sumSq := 0.0
	for _, s := range r.OuterScores {
		diff := s - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(r.OuterScores)-1))
}

// NestedCrossValidate estimates the generalization performance of the whole
// model-selection procedure. For each outer fold it runs a full grid search
// on the outer training partition only (using inner for the inner folds),
// then fits the selected configuration on that training partition and
// scores it exactly once on the outer held-out partition.
//
// Any outer fold whose search, fit or score fails aborts the whole
// evaluation with a FoldExecutionError.
func NestedCrossValidate(ctx context.Context, base model.Tunable, grid ParamGrid, ds *dataset.Dataset, outer, inner Splitter, opts ...SearchOption) (*NestedCVResult, error) {
	if outer == nil || inner == nil {
		return nil, errors.NewConfigurationError("NestedCrossValidate", "outer and inner splitters are required")
	}
	// Validate the grid before any fitting begins.
	if _, err := grid.Expand(); err != nil {
		return nil, err
	}

	outerFolds, err := outer.Split(ds.X(), ds.Y())
	if err != nil {
		return nil, err
	}

	result := &NestedCVResult{
		OuterScores: make([]float64, len(outerFolds)),
		BestParams:  make([]map[string]interface{}, len(outerFolds)),
	}

	for idx, fold := range outerFolds {
		if err := evaluateOuterFold(ctx, base, grid, ds, inner, fold, idx, result, opts); err != nil {
			return nil, errors.NewFoldExecutionError(idx, err)
		}
	}
	return result, nil
}

func evaluateOuterFold(ctx context.Context, base model.Tunable, grid ParamGrid, ds *dataset.Dataset, inner Splitter, fold Fold, idx int, result *NestedCVResult, opts []SearchOption) error {
	trainDS, err := ds.Subset(fold.TrainIndices)
	if err != nil {
		return err
	}
	testDS, err := ds.Subset(fold.TestIndices)
	if err != nil {
		return err
	}

	// The inner search sees only the outer training partition; the
	// held-out partition cannot influence configuration selection.
	search, err := NewGridSearchCV(base, grid, inner, opts...)
	if err != nil {
		return err
	}
	report, err := search.Run(ctx, trainDS)
	if err != nil {
		return err
	}
	if report.Incomplete {
		result.Incomplete = true
	}

	best := report.Best()
	est, err := search.cloneWith(best.Params)
	if err != nil {
		return err
	}
	if err := est.Fit(trainDS.X(), trainDS.Y()); err != nil {
		return errors.Wrap(err, "fit selected configuration")
	}
	score, err := est.Score(testDS.X(), testDS.Y())
	if err != nil {
		return errors.Wrap(err, "score selected configuration")
	}

	result.OuterScores[idx] = score
	result.BestParams[idx] = best.Params
	return nil
}
