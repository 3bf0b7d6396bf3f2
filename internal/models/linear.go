package models

import (
	"fmt"
	"strconv"

	"github.com/sajari/regression"
)

// Linear is ordinary least squares. Constant and duplicated columns are
// dropped before solving because one-hot groups make the design singular.
type Linear struct {
	Width   int       `json:"width"`
	Columns []int     `json:"columns"`
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
	R2      float64   `json:"r2"`
}

// NewLinear returns an unfitted linear model.
func NewLinear() *Linear { return &Linear{} }

// Name returns the registry name.
func (l *Linear) Name() string { return LinearRegression }

// Fit solves the least squares problem on the retained columns.
func (l *Linear) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, len(y))
	if err != nil {
		return err
	}
	cols := informativeColumns(X, width)
	if len(cols) == 0 {
		return fmt.Errorf("%w: every column is constant", ErrShape)
	}

	var r regression.Regression
	r.SetObserved("y")
	for i, c := range cols {
		r.SetVar(i, "x"+strconv.Itoa(c))
	}
	for i, row := range X {
		vars := make([]float64, len(cols))
		for k, c := range cols {
			vars[k] = row[c]
		}
		r.Train(regression.DataPoint(y[i], vars))
	}
	if err := r.Run(); err != nil {
		return fmt.Errorf("failed to solve linear regression: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(cols)+1 {
		return fmt.Errorf("linear regression returned %d coefficients for %d columns", len(coeffs), len(cols))
	}
	l.Width = width
	l.Columns = cols
	l.Bias = coeffs[0]
	l.Weights = coeffs[1:]
	l.R2 = r.R2
	return nil
}

// Predict applies the fitted coefficients.
func (l *Linear) Predict(X [][]float64) ([]float64, error) {
	if l.Weights == nil {
		return nil, ErrNotFitted
	}
	width, err := checkShape(X, -1)
	if err != nil {
		return nil, err
	}
	if width != l.Width {
		return nil, fmt.Errorf("%w: got %d columns, fitted on %d", ErrShape, width, l.Width)
	}

	out := make([]float64, len(X))
	for i, row := range X {
		v := l.Bias
		for k, c := range l.Columns {
			v += l.Weights[k] * row[c]
		}
		out[i] = v
	}
	return out, nil
}

// informativeColumns keeps the first occurrence of every non-constant column.
func informativeColumns(X [][]float64, width int) []int {
	var keep []int
	for c := 0; c < width; c++ {
		if constantColumn(X, c) {
			continue
		}
		dup := false
		for _, k := range keep {
			if sameColumn(X, c, k) {
				dup = true
				break
			}
		}
		if !dup {
			keep = append(keep, c)
		}
	}
	return keep
}

func constantColumn(X [][]float64, c int) bool {
	for _, row := range X[1:] {
		if row[c] != X[0][c] {
			return false
		}
	}
	return true
}

func sameColumn(X [][]float64, a, b int) bool {
	for _, row := range X {
		if row[a] != row[b] {
			return false
		}
	}
	return true
}
