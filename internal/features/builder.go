package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// Config controls the derived columns. Two tables built with different
// configs produce different manifests.
type Config struct {
	Horizon     int   // target offset in days
	Lags        []int // admissions lags
	RollWindows []int // rolling means over admissions shifted by one day
	StdWindow   int   // rolling std over admissions shifted by one day
	DiffPeriods []int // first differences
}

// DefaultConfig returns the J+4 configuration.
func DefaultConfig() Config {
	return Config{
		Horizon:     4,
		Lags:        []int{1, 4, 7, 14, 28},
		RollWindows: []int{7, 14, 28},
		StdWindow:   7,
		DiffPeriods: []int{1, 7},
	}
}

// Window returns the number of leading rows whose lag or rolling features
// are undefined.
func (c Config) Window() int {
	w := c.StdWindow
	for _, l := range c.Lags {
		w = max(w, l)
	}
	for _, rw := range c.RollWindows {
		w = max(w, rw)
	}
	for _, p := range c.DiffPeriods {
		w = max(w, p)
	}
	return w
}

// rawColumns are copied from the record onto the table in this order,
// followed by the export extras.
var rawColumns = []string{
	series.ColAdmissions,
	series.ColHoliday,
	series.ColTempMean,
	series.ColTempMin,
	series.ColTempMax,
	series.ColImpact,
	series.ColYear,
}

// Build derives the full feature table from the history: same length, same
// order. Rolling statistics only see days strictly before the row.
func Build(s *series.Series, cfg Config) *Table {
	n := s.Len()
	adm := s.Column(series.ColAdmissions)

	t := &Table{Rows: make([]Row, n)}
	for i, rec := range s.Records {
		t.Rows[i] = Row{
			Date:    rec.Date,
			DayName: rec.DayName,
			Season:  rec.Season,
			Weather: rec.Weather,
			Event:   rec.Event,
			Values:  make(map[string]float64),
		}
	}

	// Raw numeric columns, skipping ones the export never filled
	raw := append(append([]string{}, rawColumns...), s.ExtraColumns...)
	for _, col := range raw {
		values := s.Column(col)
		if col != series.ColAdmissions && allNaN(values) {
			continue
		}
		t.addColumn(col, values)
	}

	// Target: admissions Horizon days ahead
	target := make([]float64, n)
	for i := range target {
		target[i] = at(adm, i+cfg.Horizon)
	}
	t.addColumn(TargetColumn, target)

	// Calendar
	holiday := make([]float64, n)
	weekend := make([]float64, n)
	for i, rec := range s.Records {
		holiday[i] = boolValue(rec.Holiday)
		weekend[i] = boolValue(series.IsWeekend(rec.Date))
	}
	before := make([]float64, n)
	after := make([]float64, n)
	for i := range holiday {
		if i+1 < n {
			before[i] = holiday[i+1]
		}
		if i > 0 {
			after[i] = holiday[i-1]
		}
	}
	t.addColumn(ColIsWeekend, weekend)
	t.addColumn(ColIsHoliday, holiday)
	t.addColumn(ColDayBefore, before)
	t.addColumn(ColDayAfter, after)

	// Lags
	for _, l := range cfg.Lags {
		lag := make([]float64, n)
		for i := range lag {
			lag[i] = at(adm, i-l)
		}
		t.addColumn(LagColumn(l), lag)
	}

	// Rolling statistics over adm[i-w .. i-1]
	for _, w := range cfg.RollWindows {
		t.addColumn(RollMeanColumn(w), rolling(adm, w, func(win []float64) float64 {
			return stat.Mean(win, nil)
		}))
	}
	t.addColumn(RollStdColumn(cfg.StdWindow), rolling(adm, cfg.StdWindow, func(win []float64) float64 {
		return stat.StdDev(win, nil)
	}))

	// First differences
	for _, p := range cfg.DiffPeriods {
		diff := make([]float64, n)
		for i := range diff {
			diff[i] = adm[i] - at(adm, i-p)
		}
		t.addColumn(DiffColumn(p), diff)
	}

	// Rule multipliers
	mDay := make([]float64, n)
	mSeason := make([]float64, n)
	mHoliday := make([]float64, n)
	mHeat := make([]float64, n)
	mEvent := make([]float64, n)
	for i, rec := range s.Records {
		mDay[i] = DayMultiplier(rec.DayName)
		mSeason[i] = SeasonMultiplier(rec.Season)
		mHoliday[i] = HolidayMultiplier(rec.Holiday)
		mHeat[i] = HeatwaveMultiplier(rec.TempMax)
		mEvent[i] = EventMultiplier(rec.Impact)
	}
	t.addColumn(ColMultDay, mDay)
	t.addColumn(ColMultSeason, mSeason)
	t.addColumn(ColMultHoliday, mHoliday)
	t.addColumn(ColMultHeat, mHeat)
	t.addColumn(ColMultEvent, mEvent)

	// One-hot categories observed in history
	t.addOneHot(WeatherPrefix, func(r Row) string { return r.Weather })
	t.addOneHot(EventPrefix, func(r Row) string { return r.Event })

	return t
}

func (t *Table) addColumn(col string, values []float64) {
	t.Columns = append(t.Columns, col)
	for i := range t.Rows {
		t.Rows[i].Values[col] = values[i]
	}
}

func (t *Table) addOneHot(prefix string, label func(Row) string) {
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		if l := label(r); l != "" {
			seen[l] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, l := range labels {
		col := CategoryColumn(prefix, l)
		values := make([]float64, len(t.Rows))
		for i, r := range t.Rows {
			if label(r) == l {
				values[i] = 1
			}
		}
		t.addColumn(col, values)
	}
}

// rolling applies fn over the w values strictly before each index. Windows
// that are short or contain NaN yield NaN.
func rolling(values []float64, w int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < w {
			out[i] = math.NaN()
			continue
		}
		win := values[i-w : i]
		if hasNaN(win) {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(win)
	}
	return out
}

func at(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func allNaN(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
