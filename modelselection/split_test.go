package modelselection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	xerrors "github.com/goml-dev/modelselect/pkg/errors"
)

func labelColumn(labels []float64) *mat.Dense {
	y := mat.NewDense(len(labels), 1, nil)
	for i, v := range labels {
		y.Set(i, 0, v)
	}
	return y
}

func featureMatrix(n int) *mat.Dense {
	x := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		x.Set(i, 1, float64(i)*2)
	}
	return x
}

func TestNewKFold(t *testing.T) {
	t.Run("rejects fewer than 2 splits", func(t *testing.T) {
		_, err := NewKFold(1, false, 0)
		require.Error(t, err)
		var cfgErr *xerrors.ConfigurationError
		assert.True(t, xerrors.As(err, &cfgErr))
	})

	t.Run("accepts 2 splits", func(t *testing.T) {
		kf, err := NewKFold(2, false, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, kf.NumSplits())
	})
}

func TestKFoldSplit(t *testing.T) {
	t.Run("test sets partition the row range", func(t *testing.T) {
		n := 100
		kf, err := NewKFold(5, false, 42)
		require.NoError(t, err)

		folds, err := kf.Split(featureMatrix(n), nil)
		require.NoError(t, err)
		require.Len(t, folds, 5)

		seen := make(map[int]int)
		for i, fold := range folds {
			assert.Equal(t, 80, len(fold.TrainIndices), "fold %d train size", i)
			assert.Equal(t, 20, len(fold.TestIndices), "fold %d test size", i)

			inTest := make(map[int]bool)
			for _, idx := range fold.TestIndices {
				inTest[idx] = true
				seen[idx]++
			}
			for _, idx := range fold.TrainIndices {
				assert.False(t, inTest[idx], "train index %d also in test set", idx)
			}
		}
		for i := 0; i < n; i++ {
			assert.Equal(t, 1, seen[i], "row %d must appear in exactly one test set", i)
		}
	})

	t.Run("uneven rows spread the remainder", func(t *testing.T) {
		kf, err := NewKFold(3, false, 0)
		require.NoError(t, err)

		folds, err := kf.Split(featureMatrix(10), nil)
		require.NoError(t, err)
		sizes := []int{len(folds[0].TestIndices), len(folds[1].TestIndices), len(folds[2].TestIndices)}
		assert.Equal(t, []int{4, 3, 3}, sizes)
	})

	t.Run("shuffle is reproducible from the seed", func(t *testing.T) {
		kfA, err := NewKFold(4, true, 7)
		require.NoError(t, err)
		kfB, err := NewKFold(4, true, 7)
		require.NoError(t, err)

		foldsA, err := kfA.Split(featureMatrix(40), nil)
		require.NoError(t, err)
		foldsB, err := kfB.Split(featureMatrix(40), nil)
		require.NoError(t, err)
		assert.Equal(t, foldsA, foldsB)
	})

	t.Run("fewer samples than folds fails", func(t *testing.T) {
		kf, err := NewKFold(5, false, 0)
		require.NoError(t, err)

		_, err = kf.Split(featureMatrix(3), nil)
		require.Error(t, err)
		assert.True(t, xerrors.IsInvalidInput(err))
	})
}

func TestStratifiedKFoldSplit(t *testing.T) {
	t.Run("validation sets partition the rows and balance every class", func(t *testing.T) {
		// 30 rows, three classes of 12, 10 and 8 members.
		labels := make([]float64, 0, 30)
		for i := 0; i < 12; i++ {
			labels = append(labels, 0)
		}
		for i := 0; i < 10; i++ {
			labels = append(labels, 1)
		}
		for i := 0; i < 8; i++ {
			labels = append(labels, 2)
		}

		skf, err := NewStratifiedKFold(4, false, 0)
		require.NoError(t, err)
		folds, err := skf.Split(featureMatrix(30), labelColumn(labels))
		require.NoError(t, err)
		require.Len(t, folds, 4)

		seen := make(map[int]int)
		for _, fold := range folds {
			for _, idx := range fold.TestIndices {
				seen[idx]++
			}
		}
		for i := 0; i < 30; i++ {
			assert.Equal(t, 1, seen[i], "row %d coverage", i)
		}

		// Per-class counts in each validation fold differ from
		// count/k by at most the floor/ceil gap.
		classCounts := map[float64]int{0: 12, 1: 10, 2: 8}
		for f, fold := range folds {
			perClass := make(map[float64]int)
			for _, idx := range fold.TestIndices {
				perClass[labels[idx]]++
			}
			for class, total := range classCounts {
				lo := total / 4
				hi := lo
				if total%4 != 0 {
					hi++
				}
				got := perClass[class]
				assert.GreaterOrEqual(t, got, lo, "fold %d class %v", f, class)
				assert.LessOrEqual(t, got, hi, "fold %d class %v", f, class)
			}
		}
	})

	t.Run("twelve rows two balanced classes three folds", func(t *testing.T) {
		// 6 rows of each class, k=3: every validation set must hold
		// exactly 2 of each class and the 3 sets cover all 12 rows.
		labels := []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
		skf, err := NewStratifiedKFold(3, false, 0)
		require.NoError(t, err)

		folds, err := skf.Split(featureMatrix(12), labelColumn(labels))
		require.NoError(t, err)
		require.Len(t, folds, 3)

		seen := make(map[int]bool)
		for f, fold := range folds {
			require.Len(t, fold.TestIndices, 4, "fold %d", f)
			perClass := map[float64]int{}
			for _, idx := range fold.TestIndices {
				perClass[labels[idx]]++
				assert.False(t, seen[idx], "row %d in two validation sets", idx)
				seen[idx] = true
			}
			assert.Equal(t, 2, perClass[0], "fold %d class 0", f)
			assert.Equal(t, 2, perClass[1], "fold %d class 1", f)
		}
		assert.Len(t, seen, 12)
	})

	t.Run("class smaller than fold count fails with no output", func(t *testing.T) {
		// Class 1 has only 3 members, k=5.
		labels := []float64{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}
		skf, err := NewStratifiedKFold(5, false, 0)
		require.NoError(t, err)

		folds, err := skf.Split(featureMatrix(10), labelColumn(labels))
		require.Error(t, err)
		assert.Nil(t, folds)

		var insErr *xerrors.InsufficientSamplesError
		require.True(t, xerrors.As(err, &insErr))
		assert.Equal(t, "1", insErr.Class)
		assert.Equal(t, 3, insErr.Count)
		assert.Equal(t, 5, insErr.Folds)
	})

	t.Run("deterministic for a fixed seed", func(t *testing.T) {
		labels := make([]float64, 60)
		for i := range labels {
			labels[i] = float64(i % 3)
		}
		a, err := NewStratifiedKFold(5, true, 99)
		require.NoError(t, err)
		b, err := NewStratifiedKFold(5, true, 99)
		require.NoError(t, err)

		foldsA, err := a.Split(featureMatrix(60), labelColumn(labels))
		require.NoError(t, err)
		foldsB, err := b.Split(featureMatrix(60), labelColumn(labels))
		require.NoError(t, err)
		assert.Equal(t, foldsA, foldsB)
	})

	t.Run("nil labels fail", func(t *testing.T) {
		skf, err := NewStratifiedKFold(2, false, 0)
		require.NoError(t, err)
		_, err = skf.Split(featureMatrix(10), nil)
		require.Error(t, err)
		assert.True(t, xerrors.IsInvalidInput(err))
	})

	t.Run("rejects fewer than 2 splits", func(t *testing.T) {
		_, err := NewStratifiedKFold(0, false, 0)
		require.Error(t, err)
		var cfgErr *xerrors.ConfigurationError
		assert.True(t, xerrors.As(err, &cfgErr))
	})
}
