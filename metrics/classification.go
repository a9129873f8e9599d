package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// Accuracy computes the fraction of exactly matching predictions.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyMatrix computes accuracy for n×1 matrix inputs.
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := ColumnVec("AccuracyMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := ColumnVec("AccuracyMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(t, p)
}
