package eval

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MAE computes the mean absolute error. Mismatched or empty inputs yield NaN.
func MAE(yTrue, yPred []float64) float64 {
	if !sameLength(yTrue, yPred) {
		return math.NaN()
	}
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue))
}

// RMSE computes the root mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	if !sameLength(yTrue, yPred) {
		return math.NaN()
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue)))
}

// MAPE computes the mean absolute percentage error, in percent. Pairs whose
// true value is zero are excluded; NaN when every pair is excluded.
func MAPE(yTrue, yPred []float64) float64 {
	if !sameLength(yTrue, yPred) {
		return math.NaN()
	}

	var errs []float64
	for i, y := range yTrue {
		if y == 0 {
			continue
		}
		errs = append(errs, math.Abs((y-yPred[i])/y))
	}
	if len(errs) == 0 {
		return math.NaN()
	}
	return stat.Mean(errs, nil) * 100
}

// SMAPE computes the symmetric MAPE, in percent, with the denominator
// (|true| + |pred|) / 2. Zero denominators are excluded; NaN when every pair
// is excluded.
func SMAPE(yTrue, yPred []float64) float64 {
	if !sameLength(yTrue, yPred) {
		return math.NaN()
	}

	var errs []float64
	for i, y := range yTrue {
		den := (math.Abs(y) + math.Abs(yPred[i])) / 2
		if den == 0 {
			continue
		}
		errs = append(errs, math.Abs(y-yPred[i])/den)
	}
	if len(errs) == 0 {
		return math.NaN()
	}
	return stat.Mean(errs, nil) * 100
}

// Evaluate computes the full metric suite for one prediction vector.
func Evaluate(yTrue, yPred []float64) Metrics {
	return Metrics{
		MAE:   MAE(yTrue, yPred),
		RMSE:  RMSE(yTrue, yPred),
		MAPE:  MAPE(yTrue, yPred),
		SMAPE: SMAPE(yTrue, yPred),
	}
}

func sameLength(a, b []float64) bool {
	return len(a) > 0 && len(a) == len(b)
}
