package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/linear"
	"github.com/goml-dev/modelselect/neighbors"
	xerrors "github.com/goml-dev/modelselect/pkg/errors"
	"github.com/goml-dev/modelselect/preprocessing"
)

func regressionData() (*mat.Dense, *mat.Dense) {
	// y = 3*x0 - 2*x1 + 1, features on very different scales.
	X := mat.NewDense(8, 2, []float64{
		1, 100,
		2, 250,
		3, 120,
		4, 400,
		5, 180,
		6, 320,
		7, 90,
		8, 210,
	})
	y := mat.NewDense(8, 1, nil)
	for i := 0; i < 8; i++ {
		y.Set(i, 0, 3*X.At(i, 0)-2*X.At(i, 1)+1)
	}
	return X, y
}

func classificationData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		0.1, 0.2,
		0.2, 0.1,
		0.15, 0.25,
		0.05, 0.15,
		5.1, 5.2,
		5.2, 5.1,
		5.15, 5.25,
		5.05, 5.15,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

func TestNew(t *testing.T) {
	t.Run("valid stages", func(t *testing.T) {
		p, err := New(
			Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "reg", Estimator: linear.NewRegression()},
		)
		require.NoError(t, err)
		assert.Equal(t, "Pipeline[scale -> reg]", p.String())
	})

	t.Run("zero stages", func(t *testing.T) {
		_, err := New()
		requireConfigErr(t, err)
	})

	t.Run("empty stage name", func(t *testing.T) {
		_, err := New(Stage{Name: "", Estimator: linear.NewRegression()})
		requireConfigErr(t, err)
	})

	t.Run("name containing the separator", func(t *testing.T) {
		_, err := New(Stage{Name: "my__stage", Estimator: linear.NewRegression()})
		requireConfigErr(t, err)
	})

	t.Run("duplicate stage names", func(t *testing.T) {
		_, err := New(
			Stage{Name: "s", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "s", Estimator: linear.NewRegression()},
		)
		requireConfigErr(t, err)
	})

	t.Run("non-terminal stage must transform", func(t *testing.T) {
		_, err := New(
			Stage{Name: "reg", Estimator: linear.NewRegression()},
			Stage{Name: "reg2", Estimator: linear.NewRegression()},
		)
		requireConfigErr(t, err)
	})
}

func requireConfigErr(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *xerrors.ConfigurationError
	assert.True(t, xerrors.As(err, &cfgErr))
}

func TestPipelineFitPredict(t *testing.T) {
	t.Run("scaled regression recovers the target", func(t *testing.T) {
		X, y := regressionData()
		p, err := New(
			Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "reg", Estimator: linear.NewRegression()},
		)
		require.NoError(t, err)

		require.NoError(t, p.Fit(X, y))
		pred, err := p.Predict(X)
		require.NoError(t, err)

		r, c := pred.Dims()
		require.Equal(t, 8, r)
		require.Equal(t, 1, c)
		for i := 0; i < 8; i++ {
			assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1e-6, "row %d", i)
		}

		score, err := p.Score(X, y)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("unfitted pipeline refuses to predict", func(t *testing.T) {
		X, _ := regressionData()
		p, err := New(Stage{Name: "reg", Estimator: linear.NewRegression()})
		require.NoError(t, err)

		_, err = p.Predict(X)
		require.Error(t, err)
		var nfErr *xerrors.NotFittedError
		assert.True(t, xerrors.As(err, &nfErr))
	})

	t.Run("row mismatch between X and y", func(t *testing.T) {
		X, _ := regressionData()
		p, err := New(Stage{Name: "reg", Estimator: linear.NewRegression()})
		require.NoError(t, err)

		err = p.Fit(X, mat.NewDense(3, 1, nil))
		require.Error(t, err)
		assert.True(t, xerrors.IsInvalidInput(err))
	})

	t.Run("terminal stage without predict", func(t *testing.T) {
		X, y := regressionData()
		p, err := New(Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()})
		require.NoError(t, err)
		require.NoError(t, p.Fit(X, y))

		_, err = p.Predict(X)
		requireConfigErr(t, err)
	})
}

func TestPipelineLeakagePrevention(t *testing.T) {
	// The scaler must learn its statistics from the fit partition only.
	// Scoring a second partition with very different feature ranges must
	// leave the learned statistics untouched.
	X, y := classificationData()
	p, err := New(
		Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
		Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
	)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, y))

	scaler := p.Stage("scale").(*preprocessing.StandardScaler)
	meanBefore := append([]float64(nil), scaler.Mean()...)
	scaleBefore := append([]float64(nil), scaler.Scale()...)

	held := mat.NewDense(4, 2, []float64{
		100, 200,
		110, 210,
		-50, -60,
		-55, -65,
	})
	heldY := mat.NewDense(4, 1, []float64{1, 1, 0, 0})

	score, err := p.Score(held, heldY)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	_, err = p.Predict(held)
	require.NoError(t, err)

	assert.Equal(t, meanBefore, scaler.Mean())
	assert.Equal(t, scaleBefore, scaler.Scale())
}

func TestPipelineScoreIsRepeatable(t *testing.T) {
	X, y := classificationData()
	p, err := New(
		Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
		Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
	)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, y))

	before, err := p.Predict(X)
	require.NoError(t, err)

	first, err := p.Score(X, y)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		score, err := p.Score(X, y)
		require.NoError(t, err)
		assert.Equal(t, first, score)
	}

	after, err := p.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, after))
}

func TestPipelineFitOrderIndependence(t *testing.T) {
	// Fitting on the same rows in a different order must learn the same
	// parameters, so hold-out transforms are content determined.
	X, y := classificationData()
	perm := []int{7, 2, 5, 0, 3, 6, 1, 4}
	permX := mat.NewDense(8, 2, nil)
	permY := mat.NewDense(8, 1, nil)
	for i, idx := range perm {
		permX.SetRow(i, []float64{X.At(idx, 0), X.At(idx, 1)})
		permY.Set(i, 0, y.At(idx, 0))
	}

	build := func() *Pipeline {
		p, err := New(
			Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
		)
		require.NoError(t, err)
		return p
	}
	a, b := build(), build()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(permX, permY))

	held := mat.NewDense(2, 2, []float64{0.12, 0.18, 5.12, 5.18})
	outA, err := a.Stage("scale").(*preprocessing.StandardScaler).Transform(held)
	require.NoError(t, err)
	outB, err := b.Stage("scale").(*preprocessing.StandardScaler).Transform(held)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(outA, outB, 1e-12))

	predA, err := a.Predict(held)
	require.NoError(t, err)
	predB, err := b.Predict(held)
	require.NoError(t, err)
	assert.True(t, mat.Equal(predA, predB))
}

func TestPipelineDeterminism(t *testing.T) {
	X, y := classificationData()
	build := func() *Pipeline {
		p, err := New(
			Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
		)
		require.NoError(t, err)
		return p
	}

	a, b := build(), build()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	predA, err := a.Predict(X)
	require.NoError(t, err)
	predB, err := b.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(predA, predB))
}

func TestPipelineParams(t *testing.T) {
	p, err := New(
		Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
		Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
	)
	require.NoError(t, err)

	t.Run("get flattens with stage prefixes", func(t *testing.T) {
		params := p.GetParams()
		assert.Contains(t, params, "scale__with_mean")
		assert.Contains(t, params, "clf__shrink_threshold")
	})

	t.Run("set routes to the named stage", func(t *testing.T) {
		err := p.SetParams(map[string]interface{}{
			"clf__shrink_threshold": 0.5,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.5, p.GetParams()["clf__shrink_threshold"])
	})

	t.Run("key without stage prefix", func(t *testing.T) {
		err := p.SetParams(map[string]interface{}{"shrink_threshold": 0.5})
		require.Error(t, err)
		var valErr *xerrors.ValidationError
		assert.True(t, xerrors.As(err, &valErr))
	})

	t.Run("unknown stage name", func(t *testing.T) {
		err := p.SetParams(map[string]interface{}{"nope__alpha": 0.5})
		require.Error(t, err)
		var valErr *xerrors.ValidationError
		assert.True(t, xerrors.As(err, &valErr))
	})
}

func TestPipelineClone(t *testing.T) {
	X, y := classificationData()
	p, err := New(
		Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
		Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
	)
	require.NoError(t, err)
	require.NoError(t, p.Fit(X, y))

	clone := p.Clone().(*Pipeline)

	// The clone is unfitted and shares no stage instances.
	_, err = clone.Predict(X)
	require.Error(t, err)
	var nfErr *xerrors.NotFittedError
	assert.True(t, xerrors.As(err, &nfErr))
	assert.NotSame(t, p.Stage("scale"), clone.Stage("scale"))
	assert.NotSame(t, p.Stage("clf"), clone.Stage("clf"))

	// Fitting the clone does not disturb the original.
	require.NoError(t, clone.Fit(X, y))
	score, err := p.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestPipelineStateRoundTrip(t *testing.T) {
	X, y := classificationData()
	build := func() *Pipeline {
		p, err := New(
			Stage{Name: "scale", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
		)
		require.NoError(t, err)
		return p
	}

	t.Run("round trip restores predictions", func(t *testing.T) {
		src := build()
		require.NoError(t, src.Fit(X, y))
		blob, err := src.ExportState()
		require.NoError(t, err)

		dst := build()
		require.NoError(t, dst.ImportState(blob))

		want, err := src.Predict(X)
		require.NoError(t, err)
		got, err := dst.Predict(X)
		require.NoError(t, err)
		assert.True(t, mat.Equal(want, got))
	})

	t.Run("unfitted pipeline cannot export", func(t *testing.T) {
		_, err := build().ExportState()
		require.Error(t, err)
		var nfErr *xerrors.NotFittedError
		assert.True(t, xerrors.As(err, &nfErr))
	})

	t.Run("stage name mismatch is rejected", func(t *testing.T) {
		src := build()
		require.NoError(t, src.Fit(X, y))
		blob, err := src.ExportState()
		require.NoError(t, err)

		other, err := New(
			Stage{Name: "norm", Estimator: preprocessing.NewStandardScalerDefault()},
			Stage{Name: "clf", Estimator: neighbors.NewNearestCentroid()},
		)
		require.NoError(t, err)
		err = other.ImportState(blob)
		require.Error(t, err)
		assert.True(t, xerrors.IsInvalidInput(err))
	})
}
