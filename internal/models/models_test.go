package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData returns y = 10 for x < 5 and 20 otherwise, plus a constant column.
func stepData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i), 1})
		if i < 5 {
			y = append(y, 10)
		} else {
			y = append(y, 20)
		}
	}
	return X, y
}

func TestBoostingFitsStep(t *testing.T) {
	X, y := stepData()
	b := NewBoosting(Params{})
	require.NoError(t, b.Fit(X, y))
	assert.Len(t, b.Trees, 100)

	pred, err := b.Predict([][]float64{{0, 1}, {9, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 10, pred[0], 0.01)
	assert.InDelta(t, 20, pred[1], 0.01)
}

func TestForestDeterministic(t *testing.T) {
	X, y := stepData()

	f1 := NewForest(Params{Trees: 50})
	require.NoError(t, f1.Fit(X, y))
	f2 := NewForest(Params{Trees: 50})
	require.NoError(t, f2.Fit(X, y))

	p1, err := f1.Predict(X)
	require.NoError(t, err)
	p2, err := f2.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	assert.InDelta(t, 10, p1[0], 1)
	assert.InDelta(t, 20, p1[9], 1)
}

func TestZeroSeedMeansDefault(t *testing.T) {
	assert.Equal(t, DefaultSeed, Params{}.EffectiveSeed())
	assert.Equal(t, uint64(7), Params{Seed: 7}.EffectiveSeed())
	assert.Equal(t, DefaultSeed, NewForest(Params{}).Seed)
	assert.Equal(t, uint64(7), NewForest(Params{Seed: 7}).Seed)
}

func TestLinearDropsConstantColumns(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x := float64(i)
		// column 2 duplicates column 0
		X = append(X, []float64{x, 5, x})
		y = append(y, 2*x+1)
	}

	l := NewLinear()
	require.NoError(t, l.Fit(X, y))
	assert.Equal(t, []int{0}, l.Columns)
	assert.InDelta(t, 1, l.Bias, 1e-6)
	assert.InDelta(t, 2, l.Weights[0], 1e-6)

	pred, err := l.Predict([][]float64{{30, 5, 30}})
	require.NoError(t, err)
	assert.InDelta(t, 61, pred[0], 1e-6)
}

func TestPredictErrors(t *testing.T) {
	_, err := NewBoosting(Params{}).Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	X, y := stepData()
	f := NewForest(Params{Trees: 3})
	require.NoError(t, f.Fit(X, y))
	_, err = f.Predict([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrShape)

	assert.ErrorIs(t, NewBoosting(Params{}).Fit(X, y[:3]), ErrShape)

	_, err = New("xgboost", Params{})
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, []string{GradientBoosting, LinearRegression, RandomForest}, Names())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	X, y := stepData()
	cols := []string{"adm_lag_1", "is_weekend"}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			r, err := New(name, Params{Trees: 10})
			require.NoError(t, err)
			require.NoError(t, r.Fit(X, y))
			want, err := r.Predict(X)
			require.NoError(t, err)

			data, err := Marshal(r, cols, at)
			require.NoError(t, err)

			back, env, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, name, env.Model)
			assert.Equal(t, cols, env.FeatureColumns)
			assert.True(t, at.Equal(env.TrainedAt))

			got, err := back.Predict(X)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got, 1e-9)
		})
	}
}
