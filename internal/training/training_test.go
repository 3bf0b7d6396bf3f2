package training

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

func constantSeries(t *testing.T, n int, adm float64) *series.Series {
	t.Helper()

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]series.Record, n)
	for i := range recs {
		recs[i] = series.Record{
			Date:       start.AddDate(0, 0, i),
			Admissions: adm,
			TempMean:   12,
			TempMin:    8,
			TempMax:    16,
			Weather:    "Soleil",
			Event:      series.NoEvent,
			Impact:     0,
		}
	}
	s, err := series.New(recs, nil)
	require.NoError(t, err)
	return s
}

func TestSplitChronological(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]features.Row, 100)
	for i := range rows {
		rows[i] = features.Row{Date: start.AddDate(0, 0, i)}
	}

	train, test, err := Split(rows, 0.8)
	require.NoError(t, err)
	require.Len(t, train, 80)
	require.Len(t, test, 20)
	assert.Equal(t, rows[0].Date, train[0].Date)
	assert.Equal(t, rows[79].Date, train[79].Date)
	assert.Equal(t, rows[80].Date, test[0].Date)
	assert.True(t, train[len(train)-1].Date.Before(test[0].Date))

	_, _, err = Split(rows[:1], 0.8)
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	_, _, err = Split(rows, 1.0)
	assert.Error(t, err)
}

func TestBaselines(t *testing.T) {
	r := features.Row{Values: map[string]float64{
		features.LagColumn(4):      90,
		features.LagColumn(7):      95,
		features.RollMeanColumn(7): 100,
		features.ColMultDay:        1.10,
		features.ColMultSeason:     1.15,
		features.ColMultHoliday:    0.90,
		features.ColMultEvent:      1.0,
	}}

	got := Baselines([]features.Row{r})
	assert.Equal(t, []float64{90}, got[BaselineLag4])
	assert.Equal(t, []float64{95}, got[BaselineLag7])
	assert.Equal(t, []float64{100}, got[BaselineRollMean7])
	assert.InDelta(t, 113.85, got[BaselineRules][0], 1e-9)

	// Missing source column drops the baseline
	delete(r.Values, features.LagColumn(4))
	got = Baselines([]features.Row{r})
	assert.NotContains(t, got, BaselineLag4)
	assert.Empty(t, Baselines(nil))
}

func TestTrainConstantSeries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params = models.Params{Trees: 20}
	m := metrics.New(prometheus.NewRegistry())

	res, err := NewTrainer(cfg, nil, m).Train(context.Background(), constantSeries(t, 365, 100))
	require.NoError(t, err)

	// 365 rows minus the 28-day warm-up and the 4-day target gap
	assert.Equal(t, 333, res.TrainRows+res.TestRows)
	assert.Equal(t, 266, res.TrainRows)
	assert.Equal(t, models.GradientBoosting, res.DefaultModel)
	assert.Len(t, res.Models, 2)
	assert.NotContains(t, res.Columns, features.TargetColumn)

	lag7 := res.Report[BaselineLag7].MAE
	for _, name := range cfg.Models {
		got, ok := res.Report[name]
		require.True(t, ok, name)
		assert.LessOrEqual(t, got.MAE, lag7, name)
	}
	for _, name := range []string{BaselineLag4, BaselineRollMean7, BaselineRules} {
		assert.Contains(t, res.Report, name)
	}

	require.Len(t, res.Comparisons, 4)
	for _, c := range res.Comparisons {
		assert.Equal(t, models.GradientBoosting, c.A)
		assert.Equal(t, res.TestRows, c.Pairs)
	}

	// Constant target: every MAPE is defined and zero
	assert.False(t, math.IsNaN(res.Report[models.GradientBoosting].MAPE))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("success")))
}

func TestTrainInsufficientHistory(t *testing.T) {
	_, err := NewTrainer(nil, nil, nil).Train(context.Background(), constantSeries(t, 30, 100))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Models = []string{"xgboost"}
	assert.ErrorIs(t, cfg.Validate(), models.ErrUnknownModel)

	cfg = DefaultConfig()
	cfg.TrainRatio = 0
	assert.Error(t, cfg.Validate())
}
