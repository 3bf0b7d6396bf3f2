package eval

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMAPEZeroGuard(t *testing.T) {
	assert.True(t, math.IsNaN(MAPE([]float64{0, 0, 0}, []float64{1, 2, 3})))
	assert.Equal(t, 0.0, MAPE([]float64{0, 1, 2}, []float64{0, 1, 2}))

	// Only the non-zero pair counts: |2-1|/2 = 50%
	assert.InDelta(t, 50.0, MAPE([]float64{0, 2}, []float64{5, 1}), 1e-9)
}

func TestSMAPEZeroGuard(t *testing.T) {
	assert.True(t, math.IsNaN(SMAPE([]float64{0, 0}, []float64{0, 0})))
	assert.Equal(t, 0.0, SMAPE([]float64{0, 1, 2}, []float64{0, 1, 2}))

	// |100-50| / 75 = 66.67%
	assert.InDelta(t, 200.0/3.0, SMAPE([]float64{100}, []float64{50}), 1e-9)
}

func TestEvaluate(t *testing.T) {
	yTrue := []float64{100, 110, 120, 130}
	yPred := []float64{102, 108, 123, 126}

	m := Evaluate(yTrue, yPred)
	assert.InDelta(t, 2.75, m.MAE, 1e-9)
	assert.InDelta(t, math.Sqrt((4+4+9+16)/4.0), m.RMSE, 1e-9)
	assert.InDelta(t, (2.0/100+2.0/110+3.0/120+4.0/130)/4*100, m.MAPE, 1e-9)
	assert.Greater(t, m.SMAPE, 0.0)

	bad := Evaluate([]float64{1, 2}, []float64{1})
	assert.True(t, math.IsNaN(bad.MAE))
	assert.True(t, math.IsNaN(Evaluate(nil, nil).RMSE))
}

func TestMetricsJSONNaN(t *testing.T) {
	m := Metrics{MAE: 1.5, RMSE: 2, MAPE: math.NaN(), SMAPE: math.NaN()}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mae":1.5,"rmse":2,"mape":null,"smape":null}`, string(data))

	var back Metrics
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1.5, back.MAE)
	assert.True(t, math.IsNaN(back.MAPE))
}

func TestReportRanking(t *testing.T) {
	r := Report{
		"baseline_lag_7":    {MAE: 9},
		"baseline_lag_4":    {MAE: math.NaN()},
		"gradient_boosting": {MAE: 4},
		"random_forest":     {MAE: 5},
	}

	ranked := r.Ranking()
	require.Len(t, ranked, 4)
	assert.Equal(t, "gradient_boosting", ranked[0].Name)
	assert.Equal(t, "baseline_lag_4", ranked[3].Name)
	assert.True(t, ranked[2].Baseline)

	best, ok := r.BestModel()
	assert.True(t, ok)
	assert.Equal(t, "gradient_boosting", best)
}
