package features

import (
	"math"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

var dayMultipliers = map[string]float64{
	"Lundi":    1.10,
	"Mardi":    1.05,
	"Mercredi": 1.00,
	"Jeudi":    1.00,
	"Vendredi": 0.95,
	"Samedi":   0.85,
	"Dimanche": 0.80,
}

var seasonMultipliers = map[string]float64{
	series.SeasonWinter: 1.15,
	series.SeasonSpring: 1.00,
	series.SeasonSummer: 0.90,
	"Ete":               0.90,
	series.SeasonAutumn: 1.05,
}

// Heatwave thresholds on the daily maximum, evaluated high to low.
var heatwaveSteps = []struct {
	minTemp    float64
	multiplier float64
}{
	{35, 1.25},
	{30, 1.10},
}

// DayMultiplier returns the day-of-week activity factor, 1.0 for unknown names.
func DayMultiplier(day string) float64 {
	if m, ok := dayMultipliers[day]; ok {
		return m
	}
	return 1.0
}

// SeasonMultiplier returns the seasonal factor, 1.0 for unknown seasons.
func SeasonMultiplier(season string) float64 {
	if m, ok := seasonMultipliers[season]; ok {
		return m
	}
	return 1.0
}

// HolidayMultiplier returns 0.90 during school holidays.
func HolidayMultiplier(holiday bool) float64 {
	if holiday {
		return 0.90
	}
	return 1.00
}

// HeatwaveMultiplier returns the heat factor for a daily maximum temperature.
// NaN temperatures match no threshold.
func HeatwaveMultiplier(tempMax float64) float64 {
	for _, step := range heatwaveSteps {
		if tempMax >= step.minTemp {
			return step.multiplier
		}
	}
	return 1.00
}

// EventMultiplier returns 1 + impact, with a missing impact counted as 0.
func EventMultiplier(impact float64) float64 {
	if math.IsNaN(impact) {
		return 1.0
	}
	return 1.0 + impact
}

// Recalendar moves a row onto date: calendar flags and the day, season and
// holiday multipliers are recomputed. Holiday adjacency is unknown for
// synthetic days and set to 0.
func Recalendar(r Row, date time.Time, holiday bool) Row {
	r = r.Clone()
	date = series.Truncate(date)

	r.Date = date
	r.DayName = series.DayName(date)
	r.Season = series.SeasonOf(date.Month())

	setIfPresent(r, ColIsWeekend, boolValue(series.IsWeekend(date)))
	setIfPresent(r, ColIsHoliday, boolValue(holiday))
	setIfPresent(r, series.ColHoliday, boolValue(holiday))
	setIfPresent(r, ColDayBefore, 0)
	setIfPresent(r, ColDayAfter, 0)
	setIfPresent(r, ColMultDay, DayMultiplier(r.DayName))
	setIfPresent(r, ColMultSeason, SeasonMultiplier(r.Season))
	setIfPresent(r, ColMultHoliday, HolidayMultiplier(holiday))
	setIfPresent(r, series.ColYear, float64(date.Year()))

	return r
}

// SetTemperatures overwrites the temperature columns and the heatwave factor.
func SetTemperatures(r Row, mean, low, high float64) {
	setIfPresent(r, series.ColTempMean, mean)
	setIfPresent(r, series.ColTempMin, low)
	setIfPresent(r, series.ColTempMax, high)
	setIfPresent(r, ColMultHeat, HeatwaveMultiplier(high))
}

func setIfPresent(r Row, col string, v float64) {
	if r.Has(col) {
		r.Values[col] = v
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
