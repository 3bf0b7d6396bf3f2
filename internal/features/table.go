package features

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// Column names produced by the builder.
const (
	TargetColumn     = "y"
	AdmissionsColumn = series.ColAdmissions

	ColIsWeekend   = "is_weekend"
	ColIsHoliday   = "is_holiday"
	ColDayBefore   = "veille_holiday"
	ColDayAfter    = "lendemain_holiday"
	ColMultDay     = "mult_jour_semaine"
	ColMultSeason  = "mult_saison"
	ColMultHoliday = "mult_vacances"
	ColMultHeat    = "mult_canicule"
	ColMultEvent   = "mult_evenement"

	WeatherPrefix = "meteo_"
	EventPrefix   = "event_"
)

// LagColumn names the admissions lag feature for period l.
func LagColumn(l int) string { return fmt.Sprintf("adm_lag_%d", l) }

// RollMeanColumn names the shifted rolling mean feature for window w.
func RollMeanColumn(w int) string { return fmt.Sprintf("adm_roll_mean_%d", w) }

// RollStdColumn names the shifted rolling std feature for window w.
func RollStdColumn(w int) string { return fmt.Sprintf("adm_roll_std_%d", w) }

// DiffColumn names the first difference feature for period p.
func DiffColumn(p int) string { return fmt.Sprintf("adm_diff_%d", p) }

// CategoryColumn names the one-hot column for a label under prefix.
func CategoryColumn(prefix, label string) string { return prefix + label }

// Row is one enriched day. Values holds every numeric column; undefined
// values are NaN.
type Row struct {
	Date    time.Time
	DayName string
	Season  string
	Weather string
	Event   string
	Values  map[string]float64
}

// Get returns a numeric value, NaN when absent.
func (r Row) Get(col string) float64 {
	v, ok := r.Values[col]
	if !ok {
		return math.NaN()
	}
	return v
}

// Has reports whether the row carries col.
func (r Row) Has(col string) bool {
	_, ok := r.Values[col]
	return ok
}

// Set assigns a value.
func (r Row) Set(col string, v float64) {
	r.Values[col] = v
}

// Admissions returns the raw admissions count of the day.
func (r Row) Admissions() float64 { return r.Get(AdmissionsColumn) }

// Clone deep-copies the row so overrides never alias the table.
func (r Row) Clone() Row {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	r.Values = values
	return r
}

// Complete reports whether every column is present and not NaN.
func (r Row) Complete(cols []string) bool {
	for _, c := range cols {
		v, ok := r.Values[c]
		if !ok || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Vector extracts cols in order. A missing column is an error.
func (r Row) Vector(cols []string) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, ok := r.Values[c]
		if !ok {
			return nil, fmt.Errorf("row %s has no column %q", r.Date.Format(series.DateLayout), c)
		}
		out[i] = v
	}
	return out, nil
}

// Active reports whether the one-hot column for label under prefix is set.
func (r Row) Active(prefix, label string) bool {
	return r.Get(CategoryColumn(prefix, label)) == 1
}

// Table is the supervised learning table, ordered by date.
type Table struct {
	// Columns lists every numeric column in table order.
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasColumn reports whether col is part of the table.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Column returns the values of col for every row.
func (t *Table) Column(col string) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Get(col)
	}
	return out
}

// PrefixColumns returns the columns starting with prefix, in table order.
func (t *Table) PrefixColumns(prefix string) []string {
	return withPrefix(t.Columns, prefix)
}

// Complete returns the rows where every col is defined, preserving order.
func (t *Table) Complete(cols []string) []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r.Complete(cols) {
			out = append(out, r)
		}
	}
	return out
}

// LastDate returns the date of the final row.
func (t *Table) LastDate() time.Time {
	if len(t.Rows) == 0 {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].Date
}

func withPrefix(cols []string, prefix string) []string {
	var out []string
	for _, c := range cols {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
