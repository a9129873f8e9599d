// Package cluster provides k-means clustering.
package cluster

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/core/parallel"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// KMeans clusters samples into a fixed number of groups with Lloyd's
// algorithm. Randomness (center initialization) is driven entirely by the
// seed given at construction, so two instances with the same configuration
// and data learn identical centers.
//
// KMeans is unsupervised: Fit ignores y, Score returns the negative mean
// distance to the assigned center, and Transform maps samples into
// cluster-distance space, so KMeans can also serve as a non-terminal
// pipeline stage.
type KMeans struct {
	state *model.StateManager

	// Hyperparameters
	nClusters int
	init      string // "k-means++" or "random"
	maxIter   int
	tol       float64
	seed      uint64

	// Learned parameters
	centers_ *mat.Dense
	inertia_ float64
	nIter_   int
}

// Option configures a KMeans at construction.
type Option func(*KMeans)

// WithNClusters sets the number of clusters.
func WithNClusters(n int) Option {
	return func(km *KMeans) {
		km.nClusters = n
	}
}

// WithInit selects the center initialization method, "k-means++" (default)
// or "random".
func WithInit(init string) Option {
	return func(km *KMeans) {
		km.init = init
	}
}

// WithMaxIter sets the maximum number of Lloyd iterations.
func WithMaxIter(maxIter int) Option {
	return func(km *KMeans) {
		km.maxIter = maxIter
	}
}

// WithTol sets the center-shift threshold below which iteration stops.
func WithTol(tol float64) Option {
	return func(km *KMeans) {
		km.tol = tol
	}
}

// WithSeed sets the seed for center initialization.
func WithSeed(seed uint64) Option {
	return func(km *KMeans) {
		km.seed = seed
	}
}

// NewKMeans creates a KMeans estimator with 8 clusters, k-means++
// initialization, 300 max iterations and a fixed default seed.
func NewKMeans(opts ...Option) *KMeans {
	km := &KMeans{
		state:     model.NewStateManager(),
		nClusters: 8,
		init:      "k-means++",
		maxIter:   300,
		tol:       1e-4,
		seed:      0,
	}
	for _, opt := range opts {
		opt(km)
	}
	return km
}

// Fit learns the cluster centers from X. y is ignored.
func (km *KMeans) Fit(X, _ mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewValueError("KMeans.Fit", "empty feature matrix")
	}
	if km.nClusters < 1 {
		return errors.NewConfigurationError("KMeans", "number of clusters must be at least 1")
	}
	if rows < km.nClusters {
		return errors.NewValueError("KMeans.Fit", "fewer samples than clusters")
	}
	if km.init != "k-means++" && km.init != "random" {
		return errors.NewConfigurationError("KMeans", "init must be \"k-means++\" or \"random\"")
	}

	rng := rand.New(rand.NewPCG(km.seed, km.seed))
	centers := km.initCenters(X, rows, cols, rng)

	assignments := make([]int, rows)
	var inertia float64
	var iter int
	for iter = 0; iter < km.maxIter; iter++ {
		inertia = assign(X, centers, assignments)

		newCenters, counts := recompute(X, assignments, km.nClusters, rows, cols)
		// Re-seed empty clusters with the sample farthest from its center.
		for k := 0; k < km.nClusters; k++ {
			if counts[k] == 0 {
				far := farthestSample(X, centers, assignments)
				newCenters.SetRow(k, rowOf(X, far, cols))
				counts[k] = 1
			}
		}

		shift := 0.0
		for k := 0; k < km.nClusters; k++ {
			for j := 0; j < cols; j++ {
				d := newCenters.At(k, j) - centers.At(k, j)
				shift += d * d
			}
		}
		centers = newCenters
		if shift <= km.tol {
			break
		}
	}
	inertia = assign(X, centers, assignments)

	km.centers_ = centers
	km.inertia_ = inertia
	km.nIter_ = iter + 1
	km.state.SetDimensions(cols, rows)
	km.state.SetFitted()
	return nil
}

// initCenters seeds the initial centers with k-means++ or uniform sampling.
func (km *KMeans) initCenters(X mat.Matrix, rows, cols int, rng *rand.Rand) *mat.Dense {
	centers := mat.NewDense(km.nClusters, cols, nil)

	if km.init == "random" {
		perm := rng.Perm(rows)
		for k := 0; k < km.nClusters; k++ {
			centers.SetRow(k, rowOf(X, perm[k], cols))
		}
		return centers
	}

	// k-means++: each subsequent center is drawn with probability
	// proportional to the squared distance to the closest chosen center.
	first := rng.IntN(rows)
	centers.SetRow(0, rowOf(X, first, cols))

	minDist := make([]float64, rows)
	for i := range minDist {
		minDist[i] = sqDist(X, i, centers, 0, cols)
	}

	for k := 1; k < km.nClusters; k++ {
		total := 0.0
		for _, d := range minDist {
			total += d
		}

		var next int
		if total == 0 {
			next = rng.IntN(rows)
		} else {
			target := rng.Float64() * total
			cum := 0.0
			next = rows - 1
			for i, d := range minDist {
				cum += d
				if cum >= target {
					next = i
					break
				}
			}
		}
		centers.SetRow(k, rowOf(X, next, cols))

		for i := range minDist {
			if d := sqDist(X, i, centers, k, cols); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centers
}

// assign writes the closest-center index for every row and returns the
// total within-cluster squared distance.
func assign(X mat.Matrix, centers *mat.Dense, assignments []int) float64 {
	rows := len(assignments)
	nClusters, cols := centers.Dims()
	partial := make([]float64, rows)

	const parallelThreshold = 256
	parallel.ParallelizeWithThreshold(rows, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			best := 0
			bestDist := math.Inf(1)
			for k := 0; k < nClusters; k++ {
				d := 0.0
				for j := 0; j < cols; j++ {
					diff := X.At(i, j) - centers.At(k, j)
					d += diff * diff
				}
				if d < bestDist {
					bestDist = d
					best = k
				}
			}
			assignments[i] = best
			partial[i] = bestDist
		}
	})

	total := 0.0
	for _, d := range partial {
		total += d
	}
	return total
}

func recompute(X mat.Matrix, assignments []int, nClusters, rows, cols int) (*mat.Dense, []int) {
	centers := mat.NewDense(nClusters, cols, nil)
	counts := make([]int, nClusters)
	for i := 0; i < rows; i++ {
		k := assignments[i]
		counts[k]++
		for j := 0; j < cols; j++ {
			centers.Set(k, j, centers.At(k, j)+X.At(i, j))
		}
	}
	for k := 0; k < nClusters; k++ {
		if counts[k] == 0 {
			continue
		}
		for j := 0; j < cols; j++ {
			centers.Set(k, j, centers.At(k, j)/float64(counts[k]))
		}
	}
	return centers, counts
}

func farthestSample(X mat.Matrix, centers *mat.Dense, assignments []int) int {
	_, cols := centers.Dims()
	far, farDist := 0, -1.0
	for i, k := range assignments {
		d := sqDist(X, i, centers, k, cols)
		if d > farDist {
			farDist = d
			far = i
		}
	}
	return far
}

func sqDist(X mat.Matrix, row int, centers *mat.Dense, k, cols int) float64 {
	d := 0.0
	for j := 0; j < cols; j++ {
		diff := X.At(row, j) - centers.At(k, j)
		d += diff * diff
	}
	return d
}

func rowOf(X mat.Matrix, i, cols int) []float64 {
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = X.At(i, j)
	}
	return out
}

// Predict returns the index of the closest cluster center for each row.
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !km.state.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Predict")
	}
	rows, cols := X.Dims()
	nFeatures, _ := km.state.GetDimensions()
	if cols != nFeatures {
		return nil, errors.NewDimensionError("KMeans.Predict", nFeatures, cols, 1)
	}

	assignments := make([]int, rows)
	assign(X, km.centers_, assignments)

	predictions := mat.NewDense(rows, 1, nil)
	for i, k := range assignments {
		predictions.Set(i, 0, float64(k))
	}
	return predictions, nil
}

// Transform maps each row to its distances to the cluster centers,
// producing an n×k matrix.
func (km *KMeans) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !km.state.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Transform")
	}
	rows, cols := X.Dims()
	nFeatures, _ := km.state.GetDimensions()
	if cols != nFeatures {
		return nil, errors.NewDimensionError("KMeans.Transform", nFeatures, cols, 1)
	}

	result := mat.NewDense(rows, km.nClusters, nil)
	for i := 0; i < rows; i++ {
		for k := 0; k < km.nClusters; k++ {
			result.Set(i, k, math.Sqrt(sqDist(X, i, km.centers_, k, cols)))
		}
	}
	return result, nil
}

// FitTransform fits on X and returns the cluster-distance representation.
func (km *KMeans) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if err := km.Fit(X, y); err != nil {
		return nil, err
	}
	return km.Transform(X)
}

// Score returns the negative mean distance from each sample to its assigned
// center. Higher is better; y is ignored.
func (km *KMeans) Score(X, _ mat.Matrix) (float64, error) {
	if !km.state.IsFitted() {
		return 0, errors.NewNotFittedError("KMeans", "Score")
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return 0, errors.NewValueError("KMeans.Score", "empty feature matrix")
	}
	nFeatures, _ := km.state.GetDimensions()
	if cols != nFeatures {
		return 0, errors.NewDimensionError("KMeans.Score", nFeatures, cols, 1)
	}

	assignments := make([]int, rows)
	assign(X, km.centers_, assignments)

	total := 0.0
	for i, k := range assignments {
		total += math.Sqrt(sqDist(X, i, km.centers_, k, cols))
	}
	return -total / float64(rows), nil
}

// Centers returns a copy of the learned cluster centers, or nil before Fit.
func (km *KMeans) Centers() *mat.Dense {
	if km.centers_ == nil {
		return nil
	}
	r, c := km.centers_.Dims()
	out := mat.NewDense(r, c, nil)
	out.Copy(km.centers_)
	return out
}

// Inertia returns the within-cluster sum of squared distances after Fit.
func (km *KMeans) Inertia() float64 {
	return km.inertia_
}

// NIter returns the number of Lloyd iterations run by the last Fit.
func (km *KMeans) NIter() int {
	return km.nIter_
}

// GetParams returns the estimator's hyperparameters.
func (km *KMeans) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_clusters": km.nClusters,
		"init":       km.init,
		"max_iter":   km.maxIter,
		"tol":        km.tol,
		"seed":       km.seed,
	}
}

// SetParams reconfigures the estimator. Unknown names are rejected.
func (km *KMeans) SetParams(params map[string]interface{}) error {
	for name, value := range params {
		switch name {
		case "n_clusters":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(name, "expected int", value)
			}
			km.nClusters = v
		case "init":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(name, "expected string", value)
			}
			km.init = v
		case "max_iter":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(name, "expected int", value)
			}
			km.maxIter = v
		case "tol":
			v, ok := value.(float64)
			if !ok {
				return errors.NewValidationError(name, "expected float64", value)
			}
			km.tol = v
		case "seed":
			v, ok := value.(uint64)
			if !ok {
				return errors.NewValidationError(name, "expected uint64", value)
			}
			km.seed = v
		default:
			return errors.NewValidationError(name, "unknown parameter for KMeans", value)
		}
	}
	return nil
}

// Clone returns a fresh unfitted estimator with the same hyperparameters.
func (km *KMeans) Clone() interface{} {
	return NewKMeans(
		WithNClusters(km.nClusters),
		WithInit(km.init),
		WithMaxIter(km.maxIter),
		WithTol(km.tol),
		WithSeed(km.seed),
	)
}

// kmeansState is the serialized learned-parameter form.
type kmeansState struct {
	Centers   []float64
	NClusters int
	NFeatures int
	Inertia   float64
}

// ExportState serializes the learned cluster centers.
func (km *KMeans) ExportState() ([]byte, error) {
	if !km.state.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "ExportState")
	}
	nFeatures, _ := km.state.GetDimensions()
	raw := km.centers_.RawMatrix()
	data := make([]float64, len(raw.Data))
	copy(data, raw.Data)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(kmeansState{
		Centers:   data,
		NClusters: km.nClusters,
		NFeatures: nFeatures,
		Inertia:   km.inertia_,
	}); err != nil {
		return nil, errors.Wrap(err, "KMeans.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState.
func (km *KMeans) ImportState(data []byte) error {
	var st kmeansState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "KMeans.ImportState")
	}
	if st.NClusters == 0 || st.NFeatures == 0 {
		return errors.NewValueError("KMeans.ImportState", "empty serialized state")
	}
	km.nClusters = st.NClusters
	km.centers_ = mat.NewDense(st.NClusters, st.NFeatures, st.Centers)
	km.inertia_ = st.Inertia
	km.state.SetDimensions(st.NFeatures, 0)
	km.state.SetFitted()
	return nil
}
