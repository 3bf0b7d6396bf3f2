// Package similarity finds historical days resembling a target day and
// derives synthetic lag features from them.
package similarity

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// DefaultK is the neighbourhood size used when none is given.
const DefaultK = 10

// Default labels for descriptors built without a scenario.
const (
	DefaultWeather      = "Soleil"
	DefaultBatchWeather = series.NoEvent
	DefaultEvent        = series.NoEvent
)

// Dimension names, as reported in Search.Uniform.
const (
	DimWeather = "weather"
	DimEvent   = "event"
)

// ErrNoNeighbours is returned when synthesis is asked for an empty set.
var ErrNoNeighbours = errors.New("no similar days found")

// Weights scales each distance term. It is a value type: callers adjust a
// copy and never share a mutable default.
type Weights struct {
	Day         float64 `json:"day"`
	Season      float64 `json:"season"`
	Holiday     float64 `json:"holiday"`
	Temperature float64 `json:"temperature"`
	Weather     float64 `json:"weather"`
	Event       float64 `json:"event"`
}

// DefaultWeights returns the standard weighting: day of week and event
// dominate, temperature breaks ties.
func DefaultWeights() Weights {
	return Weights{
		Day:         3.0,
		Season:      2.0,
		Holiday:     1.5,
		Temperature: 0.3,
		Weather:     2.0,
		Event:       2.5,
	}
}

// Descriptor is the context of the target day. A NaN Temperature or an
// empty Weather or Event drops that term.
type Descriptor struct {
	Date        time.Time
	DayName     string
	Season      string
	Holiday     bool
	Temperature float64
	Weather     string
	Event       string
}

// NewDescriptor derives the calendar fields from date.
func NewDescriptor(date time.Time, holiday bool, temperature float64, weather, event string) Descriptor {
	date = series.Truncate(date)
	return Descriptor{
		Date:        date,
		DayName:     series.DayName(date),
		Season:      series.SeasonOf(date.Month()),
		Holiday:     holiday,
		Temperature: temperature,
		Weather:     weather,
		Event:       event,
	}
}

// Candidate is a historical row with its distance to the descriptor.
type Candidate struct {
	Row      features.Row
	Distance float64
}

// Admissions returns the neighbour's own admissions count.
func (c Candidate) Admissions() float64 { return c.Row.Admissions() }

// Search is the outcome of a neighbour query.
type Search struct {
	Descriptor Descriptor
	K          int
	Candidates []Candidate
	// Uniform lists dimensions whose requested category has no column in
	// history, so every row paid the full penalty.
	Uniform []string
}

// FindSimilar returns the k rows of t closest to d. Distance is the sum of
// weighted mismatch terms; temperature adds weight * |diff| / 10. Rows are
// ordered by distance then date. Rows with an undefined distance or
// admissions count are skipped.
func FindSimilar(t *features.Table, d Descriptor, k int, w Weights) *Search {
	if k <= 0 {
		k = DefaultK
	}
	s := &Search{Descriptor: d, K: k}

	weatherCols := t.PrefixColumns(features.WeatherPrefix)
	eventCols := t.PrefixColumns(features.EventPrefix)
	weatherCol := features.CategoryColumn(features.WeatherPrefix, d.Weather)
	eventCol := features.CategoryColumn(features.EventPrefix, d.Event)

	useWeather := d.Weather != "" && len(weatherCols) > 0
	useEvent := d.Event != "" && len(eventCols) > 0
	if useWeather && !t.HasColumn(weatherCol) {
		s.Uniform = append(s.Uniform, DimWeather)
	}
	if useEvent && !t.HasColumn(eventCol) {
		s.Uniform = append(s.Uniform, DimEvent)
	}
	useTemp := !math.IsNaN(d.Temperature) && t.HasColumn(series.ColTempMean)

	cands := make([]Candidate, 0, t.Len())
	for _, r := range t.Rows {
		var dist float64
		dist += w.Day * mismatch(r.DayName != d.DayName)
		dist += w.Season * mismatch(r.Season != d.Season)
		dist += w.Holiday * mismatch((r.Get(features.ColIsHoliday) == 1) != d.Holiday)
		if useTemp {
			dist += w.Temperature * math.Abs(r.Get(series.ColTempMean)-d.Temperature) / 10.0
		}
		if useWeather {
			dist += w.Weather * mismatch(r.Get(weatherCol) != 1)
		}
		if useEvent {
			dist += w.Event * mismatch(r.Get(eventCol) != 1)
		}
		if math.IsNaN(dist) || math.IsNaN(r.Admissions()) {
			continue
		}
		cands = append(cands, Candidate{Row: r, Distance: dist})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Distance != cands[j].Distance {
			return cands[i].Distance < cands[j].Distance
		}
		return cands[i].Row.Date.Before(cands[j].Row.Date)
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	s.Candidates = cands
	return s
}

// Count returns the number of neighbours found.
func (s *Search) Count() int { return len(s.Candidates) }

// LowConfidence reports fewer than k neighbours or a uniformly penalised
// dimension.
func (s *Search) LowConfidence() bool {
	return len(s.Candidates) < s.K || len(s.Uniform) > 0
}

// Distances returns the neighbour distances in rank order.
func (s *Search) Distances() []float64 {
	out := make([]float64, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Distance
	}
	return out
}

// Admissions returns the neighbour admissions in rank order.
func (s *Search) Admissions() []float64 {
	out := make([]float64, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Admissions()
	}
	return out
}

// SynthesizeLags builds lag and rolling features from the neighbours: their
// mean admissions goes into every lag and rolling mean, their standard
// deviation into the rolling std, and differences are 0.
func SynthesizeLags(cands []Candidate, cfg features.Config) (map[string]float64, error) {
	if len(cands) == 0 {
		return nil, ErrNoNeighbours
	}
	adm := make([]float64, len(cands))
	for i, c := range cands {
		adm[i] = c.Admissions()
	}
	mean, std := stat.MeanStdDev(adm, nil)
	if len(adm) < 2 {
		std = 0
	}

	out := make(map[string]float64, len(cfg.Lags)+len(cfg.RollWindows)+len(cfg.DiffPeriods)+1)
	for _, l := range cfg.Lags {
		out[features.LagColumn(l)] = mean
	}
	for _, w := range cfg.RollWindows {
		out[features.RollMeanColumn(w)] = mean
	}
	out[features.RollStdColumn(cfg.StdWindow)] = std
	for _, p := range cfg.DiffPeriods {
		out[features.DiffColumn(p)] = 0
	}
	return out, nil
}

// ApplyLags writes synthetic values onto a copy of row.
func ApplyLags(row features.Row, lags map[string]float64) features.Row {
	row = row.Clone()
	for k, v := range lags {
		row.Set(k, v)
	}
	return row
}

// Neighbour is a top-ranked similar day for display.
type Neighbour struct {
	Date       string  `json:"date"`
	Admissions float64 `json:"admissions"`
	Distance   float64 `json:"distance"`
}

// Quality summarises a search for display.
type Quality struct {
	Count          int         `json:"count"`
	DistanceMin    float64     `json:"distance_min"`
	DistanceMean   float64     `json:"distance_mean"`
	DistanceMax    float64     `json:"distance_max"`
	AdmissionsMean float64     `json:"admissions_mean"`
	AdmissionsStd  float64     `json:"admissions_std"`
	AdmissionsMin  float64     `json:"admissions_min"`
	AdmissionsMax  float64     `json:"admissions_max"`
	Top            []Neighbour `json:"top"`
	LowConfidence  bool        `json:"low_confidence"`
}

// topN is the number of neighbours listed in Quality.Top.
const topN = 3

// Evaluate computes the diagnostics of a search. An empty search yields a
// zero Quality flagged low confidence.
func Evaluate(s *Search) Quality {
	q := Quality{Count: s.Count(), LowConfidence: s.LowConfidence()}
	if q.Count == 0 {
		return q
	}

	dist := s.Distances()
	adm := s.Admissions()
	q.DistanceMin = floats.Min(dist)
	q.DistanceMax = floats.Max(dist)
	q.DistanceMean = stat.Mean(dist, nil)
	q.AdmissionsMean, q.AdmissionsStd = stat.MeanStdDev(adm, nil)
	if q.Count < 2 {
		q.AdmissionsStd = 0
	}
	q.AdmissionsMin = floats.Min(adm)
	q.AdmissionsMax = floats.Max(adm)

	for i := 0; i < q.Count && i < topN; i++ {
		c := s.Candidates[i]
		q.Top = append(q.Top, Neighbour{Date: c.Row.Date.Format(series.DateLayout), Admissions: c.Admissions(), Distance: c.Distance})
	}
	return q
}

func mismatch(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
