package features

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned when history holds a weather or event
// category the manifest has no column for.
var ErrUnknownCategory = errors.New("category not present in feature manifest")

var excludedColumns = map[string]bool{
	TargetColumn:     true,
	AdmissionsColumn: true,
	"date":           true,
}

// SelectColumns returns the model input columns in table order: every
// numeric column except the target and the raw admissions count.
func SelectColumns(t *Table) []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if excludedColumns[c] {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// UnknownCategory is a label observed in history that the manifest cannot encode.
type UnknownCategory struct {
	Prefix string
	Label  string
}

func (u UnknownCategory) String() string { return CategoryColumn(u.Prefix, u.Label) }

// ValidateCategories checks that every weather and event label seen in the
// table has a manifest column. The error wraps ErrUnknownCategory and the
// offending labels are returned for reporting.
func ValidateCategories(manifest []string, t *Table) ([]UnknownCategory, error) {
	known := make(map[string]bool, len(manifest))
	for _, c := range manifest {
		known[c] = true
	}

	var unknown []UnknownCategory
	seen := make(map[string]bool)
	check := func(prefix, label string) {
		if label == "" {
			return
		}
		col := CategoryColumn(prefix, label)
		if known[col] || seen[col] {
			return
		}
		seen[col] = true
		unknown = append(unknown, UnknownCategory{Prefix: prefix, Label: label})
	}

	for _, r := range t.Rows {
		check(WeatherPrefix, r.Weather)
		check(EventPrefix, r.Event)
	}

	if len(unknown) == 0 {
		return nil, nil
	}

	names := make([]string, len(unknown))
	for i, u := range unknown {
		names[i] = u.String()
	}
	return unknown, fmt.Errorf("%w: %s", ErrUnknownCategory, strings.Join(names, ", "))
}

// KnownCategory reports whether a label can be encoded with the manifest.
func KnownCategory(manifest []string, prefix, label string) bool {
	col := CategoryColumn(prefix, label)
	for _, c := range manifest {
		if c == col {
			return true
		}
	}
	return false
}
