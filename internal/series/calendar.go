package series

import "time"

// Day names as they appear in the export, Monday first.
var dayNames = [7]string{"Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi", "Dimanche"}

// Season labels.
const (
	SeasonWinter = "Hiver"
	SeasonSpring = "Printemps"
	SeasonSummer = "Été"
	SeasonAutumn = "Automne"
)

// DayName maps a date to its French day name.
func DayName(t time.Time) string {
	return dayNames[(int(t.Weekday())+6)%7]
}

// DayNames returns the day names, Monday first.
func DayNames() []string {
	out := make([]string, len(dayNames))
	copy(out, dayNames[:])
	return out
}

// SeasonOf buckets a month into a meteorological season.
func SeasonOf(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonAutumn
	}
}

// NormalizeSeason folds the unaccented spelling onto the canonical label.
func NormalizeSeason(s string) string {
	if s == "Ete" {
		return SeasonSummer
	}
	return s
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
