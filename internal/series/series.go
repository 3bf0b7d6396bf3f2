package series

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar date format used by the CSV export and the API.
const DateLayout = "2006-01-02"

// NoEvent is the sentinel event label for days without a special event.
const NoEvent = "Aucun"

var (
	// ErrEmpty is returned when a source yields no rows.
	ErrEmpty = errors.New("series: no rows")
	// ErrUnsorted is returned when two rows share the same date.
	ErrUnsorted = errors.New("series: dates must be unique and ascending")
)

// Column names of the daily hospital context export.
const (
	ColDate        = "date"
	ColAdmissions  = "nombre_admissions"
	ColDayName     = "jour_semaine"
	ColSeason      = "saison"
	ColHoliday     = "vacances_scolaires"
	ColTempMean    = "temperature_moyenne"
	ColTempMin     = "temperature_min"
	ColTempMax     = "temperature_max"
	ColWeather     = "meteo_principale"
	ColEvent       = "evenement_special"
	ColImpact      = "impact_evenement_estime"
	ColYear        = "annee"
	ColUrgences    = "nombre_passages_urgences"
	ColOccupancy   = "taux_occupation_lits"
	ColBedsTotal   = "lits_total"
	ColDoctors     = "nb_medecins_disponibles"
	ColNurses      = "nb_infirmiers_disponibles"
	ColCareAides   = "nb_aides_soignants_disponibles"
	ColHeatIndex   = "indice_chaleur"
	ColColdIndex   = "indice_froid"
	ColStaffCover  = "taux_couverture_personnel"
)

// Record is one calendar day of hospital context. Records are immutable once loaded.
type Record struct {
	Date       time.Time
	Admissions float64
	DayName    string
	Season     string
	Holiday    bool
	TempMean   float64
	TempMin    float64
	TempMax    float64
	Weather    string
	Event      string
	Impact     float64 // NaN when the export has no estimate
	Year       int

	// Extra holds every other numeric column of the export, keyed by name.
	Extra map[string]float64
}

// Value returns a numeric column by export name, NaN when unknown.
func (r Record) Value(name string) float64 {
	switch name {
	case ColAdmissions:
		return r.Admissions
	case ColTempMean:
		return r.TempMean
	case ColTempMin:
		return r.TempMin
	case ColTempMax:
		return r.TempMax
	case ColImpact:
		return r.Impact
	case ColYear:
		return float64(r.Year)
	case ColHoliday:
		if r.Holiday {
			return 1
		}
		return 0
	}
	if v, ok := r.Extra[name]; ok {
		return v
	}
	return math.NaN()
}

// Series is the append-only daily history, sorted ascending by date.
type Series struct {
	Records []Record

	// ExtraColumns lists the Extra keys in export order.
	ExtraColumns []string
}

// Source loads a daily history.
type Source interface {
	Load(ctx context.Context) (*Series, error)
}

// New sorts the records by date and validates the uniqueness invariant.
// Missing day names, seasons and years are derived from the date.
func New(records []Record, extraColumns []string) (*Series, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	for i := range sorted {
		r := &sorted[i]
		r.Date = Truncate(r.Date)
		if i > 0 && !sorted[i-1].Date.Before(r.Date) {
			return nil, fmt.Errorf("%w: duplicate %s", ErrUnsorted, r.Date.Format(DateLayout))
		}
		if r.DayName == "" {
			r.DayName = DayName(r.Date)
		}
		r.Season = NormalizeSeason(r.Season)
		if r.Season == "" {
			r.Season = SeasonOf(r.Date.Month())
		}
		if r.Year == 0 {
			r.Year = r.Date.Year()
		}
	}

	return &Series{Records: sorted, ExtraColumns: extraColumns}, nil
}

// Len returns the number of days.
func (s *Series) Len() int { return len(s.Records) }

// First returns the oldest record.
func (s *Series) First() Record { return s.Records[0] }

// Last returns the most recent record.
func (s *Series) Last() Record { return s.Records[len(s.Records)-1] }

// Index returns the position of date in the history.
func (s *Series) Index(date time.Time) (int, bool) {
	date = Truncate(date)
	i := sort.Search(len(s.Records), func(i int) bool {
		return !s.Records[i].Date.Before(date)
	})
	if i < len(s.Records) && s.Records[i].Date.Equal(date) {
		return i, true
	}
	return -1, false
}

// Column returns a numeric column for every record.
func (s *Series) Column(name string) []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Value(name)
	}
	return out
}

// HasColumn reports whether the export carried the named numeric column.
func (s *Series) HasColumn(name string) bool {
	switch name {
	case ColAdmissions, ColTempMean, ColTempMin, ColTempMax, ColImpact, ColYear, ColHoliday:
		return true
	}
	for _, c := range s.ExtraColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Filter returns the records matching keep, in order.
func (s *Series) Filter(keep func(Record) bool) []Record {
	var out []Record
	for _, r := range s.Records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Truncate drops the time of day, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
