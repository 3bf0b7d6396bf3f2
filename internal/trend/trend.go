// Package trend estimates year-over-year admissions growth and applies it
// to predictions beyond the historical range.
package trend

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// DefaultYears is how far past the end year the growth is compounded.
const DefaultYears = 2

// Trend is the growth between two calendar years. All fields are zero when
// the growth cannot be computed.
type Trend struct {
	StartYear       int     `json:"start_year"`
	EndYear         int     `json:"end_year"`
	AnnualGrowthPct float64 `json:"annual_growth_pct"`
	ExtrapolatedPct float64 `json:"extrapolated_pct"`
	MeanAtStart     float64 `json:"mean_at_start"`
	MeanAtEnd       float64 `json:"mean_at_end"`
	Years           int     `json:"years"`
}

// Compute returns the compound annual growth of mean daily admissions from
// startYear to endYear, extrapolated years ahead. Missing years, a
// non-positive start mean or endYear <= startYear give a zero Trend.
func Compute(s *series.Series, startYear, endYear, years int) Trend {
	zero := Trend{StartYear: startYear, EndYear: endYear, Years: years}
	n := endYear - startYear
	if s == nil || n <= 0 {
		return zero
	}

	var startAdm, endAdm []float64
	for _, r := range s.Records {
		if math.IsNaN(r.Admissions) {
			continue
		}
		switch r.Year {
		case startYear:
			startAdm = append(startAdm, r.Admissions)
		case endYear:
			endAdm = append(endAdm, r.Admissions)
		}
	}
	if len(startAdm) == 0 || len(endAdm) == 0 {
		return zero
	}

	meanStart := stat.Mean(startAdm, nil)
	meanEnd := stat.Mean(endAdm, nil)
	if meanStart <= 0 {
		return zero
	}

	growth := math.Pow(meanEnd/meanStart, 1/float64(n)) - 1
	return Trend{
		StartYear:       startYear,
		EndYear:         endYear,
		AnnualGrowthPct: growth * 100,
		ExtrapolatedPct: Extrapolate(growth, years),
		MeanAtStart:     meanStart,
		MeanAtEnd:       meanEnd,
		Years:           years,
	}
}

// Between computes the trend from the first to the last year of s.
func Between(s *series.Series, years int) Trend {
	if s == nil || s.Len() == 0 {
		return Trend{Years: years}
	}
	return Compute(s, s.First().Year, s.Last().Year, years)
}

// Extrapolate compounds an annual growth rate over years, in percent.
func Extrapolate(growth float64, years int) float64 {
	return (math.Pow(1+growth, float64(years)) - 1) * 100
}

// Factor returns the multiplier corresponding to ExtrapolatedPct.
func (t Trend) Factor() float64 {
	return 1 + t.ExtrapolatedPct/100
}

// Apply scales a raw prediction by the extrapolated growth.
func (t Trend) Apply(raw float64) float64 {
	return raw * t.Factor()
}
