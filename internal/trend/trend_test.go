package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// yearly builds one record per day of each year with a constant level.
func yearly(t *testing.T, levels map[int]float64) *series.Series {
	t.Helper()

	var recs []series.Record
	for year, adm := range levels {
		d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		for d.Year() == year {
			recs = append(recs, series.Record{Date: d, Admissions: adm, Event: series.NoEvent})
			d = d.AddDate(0, 0, 1)
		}
	}
	s, err := series.New(recs, nil)
	require.NoError(t, err)
	return s
}

func TestCompute(t *testing.T) {
	s := yearly(t, map[int]float64{2022: 100, 2023: 110, 2024: 121})

	tr := Compute(s, 2022, 2024, DefaultYears)
	assert.InDelta(t, 10.0, tr.AnnualGrowthPct, 1e-9)
	assert.InDelta(t, 21.0, tr.ExtrapolatedPct, 1e-9)
	assert.Equal(t, 100.0, tr.MeanAtStart)
	assert.Equal(t, 121.0, tr.MeanAtEnd)
	assert.InDelta(t, 121.0, tr.Apply(100), 1e-9)

	assert.Equal(t, tr, Between(s, DefaultYears))
}

func TestComputeGuards(t *testing.T) {
	s := yearly(t, map[int]float64{2022: 0, 2023: 110})

	tests := []struct {
		name       string
		start, end int
	}{
		{"missing start year", 2020, 2023},
		{"missing end year", 2022, 2030},
		{"zero start mean", 2022, 2023},
		{"reversed years", 2023, 2022},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Compute(s, tt.start, tt.end, DefaultYears)
			assert.Equal(t, 0.0, tr.AnnualGrowthPct)
			assert.Equal(t, 0.0, tr.ExtrapolatedPct)
			assert.Equal(t, 0.0, tr.MeanAtStart)
			assert.Equal(t, 0.0, tr.MeanAtEnd)
			assert.Equal(t, 1.0, tr.Factor())
		})
	}
}

func TestExtrapolate(t *testing.T) {
	assert.InDelta(t, 21.0, Extrapolate(0.10, 2), 1e-9)
	assert.InDelta(t, 0.0, Extrapolate(0, 5), 1e-12)
	assert.InDelta(t, -19.0, Extrapolate(-0.10, 2), 1e-9)
}
