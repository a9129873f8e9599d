package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// threeBlobs is 12 points in three tight, well-separated groups.
func threeBlobs() *mat.Dense {
	return mat.NewDense(12, 2, []float64{
		0.0, 0.0,
		0.1, 0.0,
		0.0, 0.1,
		0.1, 0.1,
		10.0, 10.0,
		10.1, 10.0,
		10.0, 10.1,
		10.1, 10.1,
		-10.0, 10.0,
		-10.1, 10.0,
		-10.0, 10.1,
		-10.1, 10.1,
	})
}

func TestKMeansFit(t *testing.T) {
	t.Run("separated blobs are clustered cleanly", func(t *testing.T) {
		X := threeBlobs()
		km := NewKMeans(WithNClusters(3), WithSeed(1))
		require.NoError(t, km.Fit(X, nil))

		pred, err := km.Predict(X)
		require.NoError(t, err)

		// All four members of each blob share one cluster index, and the
		// three blobs use three distinct indices.
		used := make(map[float64]bool)
		for blob := 0; blob < 3; blob++ {
			first := pred.At(blob*4, 0)
			for i := 1; i < 4; i++ {
				assert.Equal(t, first, pred.At(blob*4+i, 0), "blob %d", blob)
			}
			used[first] = true
		}
		assert.Len(t, used, 3)
		assert.Less(t, km.Inertia(), 0.1)
	})

	t.Run("same seed gives identical centers", func(t *testing.T) {
		X := threeBlobs()
		a := NewKMeans(WithNClusters(3), WithSeed(5))
		b := NewKMeans(WithNClusters(3), WithSeed(5))
		require.NoError(t, a.Fit(X, nil))
		require.NoError(t, b.Fit(X, nil))
		assert.True(t, mat.Equal(a.Centers(), b.Centers()))
	})

	t.Run("random init fits and stays deterministic", func(t *testing.T) {
		X := threeBlobs()
		a := NewKMeans(WithNClusters(3), WithInit("random"), WithSeed(2))
		b := NewKMeans(WithNClusters(3), WithInit("random"), WithSeed(2))
		require.NoError(t, a.Fit(X, nil))
		require.NoError(t, b.Fit(X, nil))

		r, c := a.Centers().Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 2, c)
		assert.True(t, mat.Equal(a.Centers(), b.Centers()))
	})

	t.Run("unknown init is rejected", func(t *testing.T) {
		err := NewKMeans(WithInit("farthest")).Fit(threeBlobs(), nil)
		require.Error(t, err)
		var cfgErr *errors.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("fewer samples than clusters", func(t *testing.T) {
		err := NewKMeans(WithNClusters(5)).Fit(mat.NewDense(3, 2, nil), nil)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestKMeansTransform(t *testing.T) {
	X := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithSeed(1))
	require.NoError(t, km.Fit(X, nil))

	out, err := km.Transform(X)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 3, c)

	// Each row's smallest distance column matches its predicted cluster.
	pred, err := km.Predict(X)
	require.NoError(t, err)
	for i := 0; i < r; i++ {
		best, bestDist := 0, out.At(i, 0)
		for k := 1; k < c; k++ {
			if out.At(i, k) < bestDist {
				best, bestDist = k, out.At(i, k)
			}
		}
		assert.Equal(t, float64(best), pred.At(i, 0), "row %d", i)
	}
}

func TestKMeansScore(t *testing.T) {
	X := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithSeed(1))
	require.NoError(t, km.Fit(X, nil))

	score, err := km.Score(X, nil)
	require.NoError(t, err)
	assert.Less(t, score, 0.0)
	assert.Greater(t, score, -0.2)

	// A faraway point scores much worse.
	far, err := km.Score(mat.NewDense(1, 2, []float64{100, 100}), nil)
	require.NoError(t, err)
	assert.Less(t, far, score)
}

// zeroRowMatrix has valid width but no rows. gonum's NewDense cannot
// construct one directly.
type zeroRowMatrix struct{}

func (zeroRowMatrix) Dims() (int, int)    { return 0, 2 }
func (zeroRowMatrix) At(_, _ int) float64 { panic("no rows") }
func (m zeroRowMatrix) T() mat.Matrix     { return mat.Transpose{Matrix: m} }

func TestKMeansScoreEmptyInput(t *testing.T) {
	km := NewKMeans(WithNClusters(3), WithSeed(1))
	require.NoError(t, km.Fit(threeBlobs(), nil))

	score, err := km.Score(zeroRowMatrix{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.False(t, math.IsNaN(score))
}

func TestKMeansParams(t *testing.T) {
	km := NewKMeans()

	t.Run("set params round trip", func(t *testing.T) {
		require.NoError(t, km.SetParams(map[string]interface{}{
			"n_clusters": 4,
			"init":       "random",
			"max_iter":   50,
			"tol":        1e-3,
			"seed":       uint64(9),
		}))
		params := km.GetParams()
		assert.Equal(t, 4, params["n_clusters"])
		assert.Equal(t, "random", params["init"])
		assert.Equal(t, 50, params["max_iter"])
	})

	t.Run("wrong type is rejected", func(t *testing.T) {
		err := km.SetParams(map[string]interface{}{"n_clusters": "many"})
		require.Error(t, err)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr))
	})

	t.Run("clone keeps hyperparameters and drops state", func(t *testing.T) {
		fitted := NewKMeans(WithNClusters(3), WithSeed(1))
		require.NoError(t, fitted.Fit(threeBlobs(), nil))
		clone := fitted.Clone().(*KMeans)
		assert.Equal(t, fitted.GetParams(), clone.GetParams())
		assert.Nil(t, clone.Centers())
	})
}

func TestKMeansStateRoundTrip(t *testing.T) {
	X := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithSeed(1))
	require.NoError(t, km.Fit(X, nil))

	blob, err := km.ExportState()
	require.NoError(t, err)

	restored := NewKMeans()
	require.NoError(t, restored.ImportState(blob))

	want, err := km.Predict(X)
	require.NoError(t, err)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
	assert.Equal(t, km.Inertia(), restored.Inertia())
}
