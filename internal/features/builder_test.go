package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testSeries(t *testing.T, n int, adm func(i int) float64) *series.Series {
	t.Helper()

	weathers := []string{"Soleil", "Pluie", "Nuageux"}
	recs := make([]series.Record, n)
	for i := range recs {
		d := start.AddDate(0, 0, i)
		recs[i] = series.Record{
			Date:       d,
			Admissions: adm(i),
			Holiday:    i%10 == 5,
			TempMean:   10,
			TempMin:    5,
			TempMax:    15,
			Weather:    weathers[i%len(weathers)],
			Event:      series.NoEvent,
			Impact:     0,
		}
	}
	s, err := series.New(recs, nil)
	require.NoError(t, err)
	return s
}

func TestBuildTargetAlignment(t *testing.T) {
	s := testSeries(t, 60, func(i int) float64 { return float64(100 + i) })
	tbl := Build(s, DefaultConfig())

	require.Equal(t, 60, tbl.Len())
	for i, r := range tbl.Rows {
		y := r.Get(TargetColumn)
		if i <= 60-5 {
			assert.Equal(t, float64(100+i+4), y, "row %d", i)
		} else {
			assert.True(t, math.IsNaN(y), "row %d should have NaN target", i)
		}
	}
}

func TestBuildLagsAndRolling(t *testing.T) {
	s := testSeries(t, 60, func(i int) float64 { return float64(i) })
	tbl := Build(s, DefaultConfig())

	r := tbl.Rows[30]
	assert.Equal(t, 29.0, r.Get(LagColumn(1)))
	assert.Equal(t, 26.0, r.Get(LagColumn(4)))
	assert.Equal(t, 2.0, r.Get(LagColumn(28)))

	// mean(23..29) = 26
	assert.InDelta(t, 26.0, r.Get(RollMeanColumn(7)), 1e-9)
	// mean(2..29) = 15.5
	assert.InDelta(t, 15.5, r.Get(RollMeanColumn(28)), 1e-9)
	// sample std of 7 consecutive integers = sqrt(28/6)
	assert.InDelta(t, math.Sqrt(28.0/6.0), r.Get(RollStdColumn(7)), 1e-9)

	assert.Equal(t, 1.0, r.Get(DiffColumn(1)))
	assert.Equal(t, 7.0, r.Get(DiffColumn(7)))

	// Leading rows are undefined
	assert.True(t, math.IsNaN(tbl.Rows[0].Get(LagColumn(1))))
	assert.True(t, math.IsNaN(tbl.Rows[6].Get(RollMeanColumn(7))))
	assert.False(t, math.IsNaN(tbl.Rows[7].Get(RollMeanColumn(7))))
	assert.True(t, math.IsNaN(tbl.Rows[27].Get(LagColumn(28))))
	assert.Equal(t, 28, DefaultConfig().Window())
}

func TestRollingMeanDoesNotLeakCurrentDay(t *testing.T) {
	base := func(i int) float64 { return float64(50 + i%9) }
	s1 := testSeries(t, 40, base)
	s2 := testSeries(t, 40, func(i int) float64 {
		if i == 20 {
			return 10000
		}
		return base(i)
	})

	t1 := Build(s1, DefaultConfig())
	t2 := Build(s2, DefaultConfig())

	for _, col := range []string{RollMeanColumn(7), RollMeanColumn(14), RollStdColumn(7)} {
		assert.Equal(t, t1.Rows[20].Get(col), t2.Rows[20].Get(col), col)
	}
	// The following day does see it
	assert.NotEqual(t, t1.Rows[21].Get(RollMeanColumn(7)), t2.Rows[21].Get(RollMeanColumn(7)))
}

func TestBuildCalendarFlags(t *testing.T) {
	s := testSeries(t, 20, func(i int) float64 { return 100 })
	tbl := Build(s, DefaultConfig())

	// Holidays at index 5 and 15
	assert.Equal(t, 1.0, tbl.Rows[4].Get(ColDayBefore))
	assert.Equal(t, 1.0, tbl.Rows[5].Get(ColIsHoliday))
	assert.Equal(t, 1.0, tbl.Rows[6].Get(ColDayAfter))
	assert.Equal(t, 0.0, tbl.Rows[0].Get(ColDayAfter))
	assert.Equal(t, 0.0, tbl.Rows[19].Get(ColDayBefore))

	// 2024-01-06 is a Saturday
	assert.Equal(t, 1.0, tbl.Rows[5].Get(ColIsWeekend))
	assert.Equal(t, 0.0, tbl.Rows[0].Get(ColIsWeekend))
}

func TestRuleMultipliers(t *testing.T) {
	// Monday in winter during school holidays
	got := DayMultiplier("Lundi") * SeasonMultiplier(series.SeasonWinter) * HolidayMultiplier(true)
	assert.InDelta(t, 1.1385, got, 1e-12)

	tests := []struct {
		tempMax float64
		want    float64
	}{
		{36, 1.25},
		{35, 1.25},
		{32, 1.10},
		{30, 1.10},
		{29.9, 1.00},
		{math.NaN(), 1.00},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HeatwaveMultiplier(tt.tempMax), "tempMax=%v", tt.tempMax)
	}

	assert.Equal(t, 1.0, DayMultiplier("Unknown"))
	assert.Equal(t, 0.90, SeasonMultiplier("Ete"))
	assert.Equal(t, 1.3, EventMultiplier(0.3))
	assert.Equal(t, 1.0, EventMultiplier(math.NaN()))

	s := testSeries(t, 10, func(i int) float64 { return 100 })
	tbl := Build(s, DefaultConfig())
	assert.Equal(t, 1.10, tbl.Rows[0].Get(ColMultDay))
	assert.Equal(t, 1.15, tbl.Rows[0].Get(ColMultSeason))
	assert.Equal(t, 0.90, tbl.Rows[5].Get(ColMultHoliday))
}

func TestOneHotEncoding(t *testing.T) {
	s := testSeries(t, 10, func(i int) float64 { return 100 })
	s.Records[9].Weather = ""
	tbl := Build(s, DefaultConfig())

	assert.Equal(t, []string{"meteo_Nuageux", "meteo_Pluie", "meteo_Soleil"}, tbl.PrefixColumns(WeatherPrefix))
	assert.Equal(t, []string{"event_Aucun"}, tbl.PrefixColumns(EventPrefix))

	assert.True(t, tbl.Rows[0].Active(WeatherPrefix, "Soleil"))
	assert.False(t, tbl.Rows[0].Active(WeatherPrefix, "Pluie"))

	// Null label activates nothing
	for _, col := range tbl.PrefixColumns(WeatherPrefix) {
		assert.Equal(t, 0.0, tbl.Rows[9].Get(col))
	}

	// A category never observed gets no column at all
	assert.False(t, tbl.HasColumn("meteo_Neige"))
}

func TestSelectColumns(t *testing.T) {
	s := testSeries(t, 40, func(i int) float64 { return float64(i) })
	tbl := Build(s, DefaultConfig())

	cols := SelectColumns(tbl)
	assert.NotContains(t, cols, TargetColumn)
	assert.NotContains(t, cols, AdmissionsColumn)
	assert.Contains(t, cols, LagColumn(4))
	assert.Contains(t, cols, ColMultEvent)
	assert.Contains(t, cols, "meteo_Soleil")

	// Stable order between runs
	assert.Equal(t, cols, SelectColumns(Build(s, DefaultConfig())))

	// A different builder config yields a different manifest
	cfg := DefaultConfig()
	cfg.Lags = []int{1, 7}
	assert.NotEqual(t, cols, SelectColumns(Build(s, cfg)))
}

func TestValidateCategories(t *testing.T) {
	s := testSeries(t, 10, func(i int) float64 { return 100 })
	tbl := Build(s, DefaultConfig())
	manifest := SelectColumns(tbl)

	unknown, err := ValidateCategories(manifest, tbl)
	require.NoError(t, err)
	assert.Empty(t, unknown)

	s.Records[3].Event = "Canicule"
	drifted := Build(s, DefaultConfig())
	unknown, err = ValidateCategories(manifest, drifted)
	require.ErrorIs(t, err, ErrUnknownCategory)
	require.Len(t, unknown, 1)
	assert.Equal(t, "event_Canicule", unknown[0].String())
	assert.False(t, KnownCategory(manifest, EventPrefix, "Canicule"))
}

func TestRecalendar(t *testing.T) {
	s := testSeries(t, 40, func(i int) float64 { return 100 })
	tbl := Build(s, DefaultConfig())
	last := tbl.Rows[len(tbl.Rows)-1]

	sunday := time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC)
	moved := Recalendar(last, sunday, true)

	assert.Equal(t, "Dimanche", moved.DayName)
	assert.Equal(t, series.SeasonSummer, moved.Season)
	assert.Equal(t, 1.0, moved.Get(ColIsWeekend))
	assert.Equal(t, 1.0, moved.Get(ColIsHoliday))
	assert.Equal(t, 0.80, moved.Get(ColMultDay))
	assert.Equal(t, 0.90, moved.Get(ColMultSeason))
	assert.Equal(t, 0.90, moved.Get(ColMultHoliday))

	// The source row is untouched
	assert.Equal(t, last.Date, tbl.Rows[len(tbl.Rows)-1].Date)
	assert.NotEqual(t, moved.Get(ColMultSeason), last.Get(ColMultSeason))

	SetTemperatures(moved, 31, 20, 36)
	assert.Equal(t, 1.25, moved.Get(ColMultHeat))
	assert.Equal(t, 31.0, moved.Get(series.ColTempMean))
}
