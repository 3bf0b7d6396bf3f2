package forecast

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// Scenario describes a day for the statistical estimator.
type Scenario struct {
	DayName     string
	Season      string
	Holiday     bool
	Temperature float64 // NaN skips the temperature rule
	Event       string
}

// ScenarioFor derives the calendar fields of a scenario from date.
func ScenarioFor(date time.Time, holiday bool, temperature float64, event string) Scenario {
	return Scenario{
		DayName:     series.DayName(date),
		Season:      series.SeasonOf(date.Month()),
		Holiday:     holiday,
		Temperature: temperature,
		Event:       event,
	}
}

// Estimate is the statistical estimate of a day. Occupation is a bed
// occupancy fraction.
type Estimate struct {
	Admissions float64
	Urgences   float64
	Occupation float64
}

// Event keyword rules, first match wins. Keywords are matched as substrings
// of the event label.
var eventRules = []struct {
	keywords      []string
	adm, urg, occ float64
}{
	{[]string{"Épidémie", "Covid"}, 1.40, 1.60, 1.30},
	{[]string{"Canicule"}, 1.30, 1.40, 1.00},
	{[]string{"froid"}, 1.20, 1.25, 1.00},
	{[]string{"pollution"}, 1.00, 1.15, 1.00},
	{[]string{"Accident", "Afflux"}, 1.55, 1.90, 1.20},
	{[]string{"Grève", "Greve"}, 0.90, 1.10, 1.05},
	{[]string{"JO", "Coupe du monde"}, 1.15, 1.25, 1.10},
	{[]string{"Tension", "Plan blanc", "Triple"}, 1.25, 1.35, 1.20},
}

// Stats estimates a day from historical means over days with the same
// weekday and season, falling back to the season, then to the whole
// history, and applies the holiday, temperature and event adjustments.
// It is deterministic.
func Stats(s *series.Series, sc Scenario) Estimate {
	season := series.NormalizeSeason(sc.Season)
	similar := s.Filter(func(r series.Record) bool {
		return r.DayName == sc.DayName && r.Season == season
	})
	if len(similar) == 0 {
		similar = s.Filter(func(r series.Record) bool { return r.Season == season })
	}
	if len(similar) == 0 {
		similar = s.Records
	}

	e := Estimate{
		Admissions: meanOf(similar, series.ColAdmissions),
		Urgences:   meanOf(similar, series.ColUrgences),
		Occupation: meanOf(similar, series.ColOccupancy),
	}

	if sc.Holiday {
		e.Admissions *= 0.85
		e.Urgences *= 0.90
	}

	switch {
	case sc.Temperature > 30:
		e.Admissions *= 1.25
		e.Urgences *= 1.35
		e.Occupation *= 1.15
	case sc.Temperature < 0:
		e.Admissions *= 1.15
		e.Urgences *= 1.20
		e.Occupation *= 1.10
	}

	if sc.Event != "" && sc.Event != series.NoEvent {
	rules:
		for _, rule := range eventRules {
			for _, kw := range rule.keywords {
				if strings.Contains(sc.Event, kw) {
					e.Admissions *= rule.adm
					e.Urgences *= rule.urg
					e.Occupation *= rule.occ
					break rules
				}
			}
		}
	}

	e.Occupation = math.Min(1.0, e.Occupation)
	return e
}

// meanOf averages the defined values of col, 0 when there are none.
func meanOf(recs []series.Record, col string) float64 {
	vals := make([]float64, 0, len(recs))
	for _, r := range recs {
		if v := r.Value(col); !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// monthTemps are the mean daily temperatures of a calendar month.
type monthTemps struct {
	mean, low, high float64
}

// profile holds the history-wide statistics the forecaster derives once.
type profile struct {
	meanAdmissions float64 // at least 1
	urgRatio       float64
	meanOccupation float64 // fraction
	overallTemp    float64
	months         map[time.Month]monthTemps
}

func newProfile(s *series.Series) profile {
	p := profile{
		meanAdmissions: math.Max(meanOf(s.Records, series.ColAdmissions), 1),
		meanOccupation: meanOf(s.Records, series.ColOccupancy),
		overallTemp:    meanOf(s.Records, series.ColTempMean),
		months:         make(map[time.Month]monthTemps, 12),
	}
	p.urgRatio = meanOf(s.Records, series.ColUrgences) / p.meanAdmissions

	byMonth := make(map[time.Month][]series.Record, 12)
	for _, r := range s.Records {
		byMonth[r.Date.Month()] = append(byMonth[r.Date.Month()], r)
	}
	for m, recs := range byMonth {
		p.months[m] = monthTemps{
			mean: meanOf(recs, series.ColTempMean),
			low:  meanOf(recs, series.ColTempMin),
			high: meanOf(recs, series.ColTempMax),
		}
	}
	return p
}

// temps returns the month means, defaulting to the overall mean +- 5.
func (p profile) temps(m time.Month) monthTemps {
	if t, ok := p.months[m]; ok {
		return t
	}
	return monthTemps{mean: p.overallTemp, low: p.overallTemp - 5, high: p.overallTemp + 5}
}

// occupancy scales the mean occupancy by pred / mean admissions, clipped to
// [50, 98] percent, returned as a fraction.
func (p profile) occupancy(pred float64) float64 {
	pct := p.meanOccupation * 100 * (pred / p.meanAdmissions)
	return math.Max(50, math.Min(98, pct)) / 100
}
