package modelselection

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/dataset"
	"github.com/goml-dev/modelselect/pkg/errors"
	"github.com/goml-dev/modelselect/pkg/log"
)

// SearchResult records the outcome of evaluating one grid configuration.
type SearchResult struct {
	// Index is the configuration's position in the grid expansion order.
	Index int

	// Params is the complete hyperparameter configuration.
	Params map[string]interface{}

	// Scores holds the per-fold validation scores, in fold order.
	Scores []float64

	// Mean and Std summarize Scores (sample standard deviation).
	Mean float64
	Std  float64

	// Err is non-nil when the configuration's inner cross-validation
	// failed. Failed configurations are excluded from ranking.
	Err error
}

// SearchReport is the outcome of a grid search.
type SearchReport struct {
	// Results holds one record per evaluated configuration, in grid
	// expansion order. When the search was cancelled, configurations
	// never dispatched are absent.
	Results []SearchResult

	// Ranking holds indices into Results, best configuration first.
	// Failed configurations do not appear.
	Ranking []int

	// Incomplete marks a report produced by a cancelled search: the
	// ranking covers only the configurations evaluated before
	// cancellation.
	Incomplete bool
}

// Best returns the top-ranked result.
func (r *SearchReport) Best() *SearchResult {
	return &r.Results[r.Ranking[0]]
}

// BestParams returns the top-ranked configuration.
func (r *SearchReport) BestParams() map[string]interface{} {
	return r.Best().Params
}

// BestScore returns the top-ranked configuration's mean validation score.
func (r *SearchReport) BestScore() float64 {
	return r.Best().Mean
}

type searchConfig struct {
	parallelism int
	logger      log.Logger
	cvOpts      []CVOption
	refit       bool
}

// SearchOption configures a GridSearchCV.
type SearchOption func(*searchConfig)

// WithSearchParallelism bounds the number of grid configurations evaluated
// concurrently. The default is the number of CPUs.
func WithSearchParallelism(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithSearchLogger sets the logger for per-configuration progress.
func WithSearchLogger(logger log.Logger) SearchOption {
	return func(c *searchConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInnerCVOptions forwards options to each configuration's inner
// cross-validation run.
func WithInnerCVOptions(opts ...CVOption) SearchOption {
	return func(c *searchConfig) {
		c.cvOpts = append(c.cvOpts, opts...)
	}
}

// WithRefit refits a pipeline with the best configuration on the full
// dataset after the search, available via Report-independent BestModel.
func WithRefit() SearchOption {
	return func(c *searchConfig) {
		c.refit = true
	}
}

// GridSearchCV selects the hyperparameter configuration maximizing the
// mean cross-validated score. It always evaluates the estimator it was
// constructed with: every configuration is applied to a fresh clone of
// base, never to a different object.
type GridSearchCV struct {
	base     model.Tunable
	grid     ParamGrid
	splitter Splitter
	cfg      searchConfig

	bestModel model.Estimator
}

// NewGridSearchCV validates the grid eagerly and builds a search over
// clones of base. splitter generates the inner folds for every
// configuration.
func NewGridSearchCV(base model.Tunable, grid ParamGrid, splitter Splitter, opts ...SearchOption) (*GridSearchCV, error) {
	if base == nil {
		return nil, errors.NewConfigurationError("GridSearchCV", "base estimator is required")
	}
	if splitter == nil {
		return nil, errors.NewConfigurationError("GridSearchCV", "splitter is required")
	}
	if _, err := grid.Expand(); err != nil {
		return nil, err
	}

	cfg := searchConfig{
		parallelism: runtime.NumCPU(),
		logger:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GridSearchCV{base: base, grid: grid, splitter: splitter, cfg: cfg}, nil
}

// Run evaluates every grid configuration with cross-validation on ds and
// ranks the outcomes by descending mean score, breaking ties by ascending
// standard deviation and then by expansion order.
//
// Configurations are independent units of work and run concurrently; the
// report is always in canonical expansion order regardless of completion
// order. Cancelling ctx stops dispatching new configurations; in-flight
// ones complete and the partial report is returned with Incomplete set.
//
// A single configuration's failure is recorded in its SearchResult and the
// search continues. Only when every evaluated configuration fails does Run
// return a SearchExhaustedError.
func (gs *GridSearchCV) Run(ctx context.Context, ds *dataset.Dataset) (*SearchReport, error) {
	configs, err := gs.grid.Expand()
	if err != nil {
		return nil, err
	}

	gs.cfg.logger.Info("grid search started",
		log.OperationKey, "grid_search",
		log.ConfigsKey, len(configs),
		log.FoldsKey, gs.splitter.NumSplits(),
	)

	results := make([]SearchResult, len(configs))
	dispatched := 0
	sem := make(chan struct{}, gs.cfg.parallelism)
	var wg sync.WaitGroup

	for i, config := range configs {
		// Coarse-grained cancellation: never dispatch a new
		// configuration after ctx is done.
		if ctx.Err() != nil {
			break
		}
		dispatched++
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, params map[string]interface{}) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = gs.evaluateConfig(ctx, idx, params, ds)
		}(i, config)
	}
	wg.Wait()

	report := &SearchReport{
		Results:    results[:dispatched],
		Incomplete: dispatched < len(configs),
	}
	report.Ranking = rankResults(report.Results)

	if len(report.Ranking) == 0 {
		if dispatched == 0 {
			return nil, errors.Wrap(ctx.Err(), "grid search cancelled before any configuration ran")
		}
		// A cancelled search is not an exhausted one. When every failure
		// stems from the context, report the cancellation itself.
		if ctx.Err() != nil && allCausedBy(report.Results, ctx.Err()) {
			return nil, errors.Wrap(ctx.Err(), "grid search cancelled before any configuration finished")
		}
		causes := make([]error, dispatched)
		for i := range report.Results {
			causes[i] = report.Results[i].Err
		}
		return nil, errors.NewSearchExhaustedError(dispatched, causes)
	}

	best := report.Best()
	gs.cfg.logger.Info("grid search finished",
		log.OperationKey, "grid_search",
		log.ConfigKey, best.Index,
		log.MeanScoreKey, best.Mean,
		log.StdScoreKey, best.Std,
		"incomplete", report.Incomplete,
	)

	if gs.cfg.refit {
		fitted, err := gs.fitConfig(best.Params, ds)
		if err != nil {
			return nil, errors.Wrap(err, "refit with best configuration")
		}
		gs.bestModel = fitted
	}
	return report, nil
}

// evaluateConfig runs one configuration's inner cross-validation. Failures
// are recorded, not propagated.
func (gs *GridSearchCV) evaluateConfig(ctx context.Context, idx int, params map[string]interface{}, ds *dataset.Dataset) SearchResult {
	result := SearchResult{Index: idx, Params: params}

	factory := func() (model.Estimator, error) {
		return gs.cloneWith(params)
	}
	cv, err := CrossValidate(ctx, factory, ds, gs.splitter, gs.cfg.cvOpts...)
	if err != nil {
		gs.cfg.logger.Warn("grid configuration failed",
			log.OperationKey, "grid_search",
			log.ConfigKey, idx,
			log.ErrAttr(err),
		)
		result.Err = err
		return result
	}

	result.Scores = cv.TestScores
	result.Mean = cv.MeanScore()
	result.Std = cv.StdScore()

	gs.cfg.logger.Debug("grid configuration evaluated",
		log.OperationKey, "grid_search",
		log.ConfigKey, idx,
		log.MeanScoreKey, result.Mean,
		log.StdScoreKey, result.Std,
	)
	return result
}

// cloneWith returns a fresh clone of the base estimator with params
// applied.
func (gs *GridSearchCV) cloneWith(params map[string]interface{}) (model.Tunable, error) {
	clone, ok := gs.base.Clone().(model.Tunable)
	if !ok {
		return nil, errors.NewConfigurationError("GridSearchCV", "clone does not satisfy the tunable contract")
	}
	if err := clone.SetParams(params); err != nil {
		return nil, err
	}
	return clone, nil
}

// fitConfig clones, configures and fits on the full dataset.
func (gs *GridSearchCV) fitConfig(params map[string]interface{}, ds *dataset.Dataset) (model.Estimator, error) {
	est, err := gs.cloneWith(params)
	if err != nil {
		return nil, err
	}
	if err := est.Fit(ds.X(), ds.Y()); err != nil {
		return nil, err
	}
	return est, nil
}

// BestModel returns the estimator refit on the full dataset with the best
// configuration. It is nil unless WithRefit was given and Run succeeded.
func (gs *GridSearchCV) BestModel() model.Estimator {
	return gs.bestModel
}

// allCausedBy reports whether every result failed with cause in its chain.
func allCausedBy(results []SearchResult, cause error) bool {
	for i := range results {
		if !errors.Is(results[i].Err, cause) {
			return false
		}
	}
	return true
}

// rankResults orders successful results best-first: descending mean score,
// then ascending standard deviation, then expansion order. The sort input
// is already in expansion order, so a stable sort realizes the final
// tie-break for free.
func rankResults(results []SearchResult) []int {
	ranking := make([]int, 0, len(results))
	for i := range results {
		if results[i].Err == nil {
			ranking = append(ranking, i)
		}
	}
	sort.SliceStable(ranking, func(a, b int) bool {
		ra, rb := &results[ranking[a]], &results[ranking[b]]
		if ra.Mean != rb.Mean {
			return ra.Mean > rb.Mean
		}
		if ra.Std != rb.Std {
			return ra.Std < rb.Std
		}
		return ra.Index < rb.Index
	})
	return ranking
}
