// Package modelselect provides composable model-evaluation building blocks
// for Go: an estimator contract, pipelines that chain transformers with a
// final estimator, stratified k-fold generation, cross-validation and grid
// search with nested cross-validation.
//
// # Quick start
//
// Build a pipeline, cross-validate it, then search a parameter grid:
//
//	scaler := preprocessing.NewStandardScalerDefault()
//	clf := neighbors.NewNearestCentroid()
//	pipe, err := pipeline.New(
//	    pipeline.Stage{Name: "scaler", Estimator: scaler},
//	    pipeline.Stage{Name: "clf", Estimator: clf},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	skf, _ := modelselection.NewStratifiedKFold(5, true, 42)
//	search, err := modelselection.NewGridSearchCV(pipe, modelselection.ParamGrid{
//	    "clf__shrink_threshold": {0.0, 0.1, 0.5},
//	}, skf)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := search.Run(context.Background(), ds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.BestParams(), report.BestScore())
//
// # Packages
//
//   - core/model: capability interfaces and fitted-state management
//   - dataset: immutable feature/label pairing shared by all workers
//   - pipeline: stage composition with leakage prevention
//   - modelselection: fold generation, cross-validation, grid search
//   - preprocessing: feature scalers
//   - metrics: R², MSE, accuracy and friends
//   - linear, neighbors, cluster: reference estimators for the three
//     score kinds (R², accuracy, negative mean center distance)
//
// Estimators fix hyperparameters at construction via functional options;
// parameters learned by Fit are fully replaced on every Fit call and are
// never mutated by Score.
package modelselect
