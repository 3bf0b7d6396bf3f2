package series

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// coercedColumns are parsed as numbers even when some cells are garbage.
var coercedColumns = map[string]bool{
	ColTempMean:   true,
	ColTempMin:    true,
	ColTempMax:    true,
	ColHeatIndex:  true,
	ColColdIndex:  true,
	ColOccupancy:  true,
	ColStaffCover: true,
	ColImpact:     true,
}

// coreColumns are mapped onto Record fields instead of Extra.
var coreColumns = map[string]bool{
	ColDate:       true,
	ColAdmissions: true,
	ColDayName:    true,
	ColSeason:     true,
	ColHoliday:    true,
	ColTempMean:   true,
	ColTempMin:    true,
	ColTempMax:    true,
	ColWeather:    true,
	ColEvent:      true,
	ColImpact:     true,
	ColYear:       true,
}

// CSVSource reads the daily hospital context export.
type CSVSource struct {
	Path string
}

// NewCSVSource creates a CSV source for path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// Load reads and parses the file.
func (s *CSVSource) Load(ctx context.Context) (*Series, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses an export. Non-core columns whose cells all parse as numbers
// (decimal commas accepted) are kept as extras; other text columns are ignored.
func ReadCSV(r io.Reader) (*Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	if _, ok := idx[ColDate]; !ok {
		return nil, fmt.Errorf("missing %q column", ColDate)
	}
	if _, ok := idx[ColAdmissions]; !ok {
		return nil, fmt.Errorf("missing %q column", ColAdmissions)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	// Decide which extra columns are numeric
	var extras []string
	for _, name := range header {
		if coreColumns[name] {
			continue
		}
		if coercedColumns[name] || numericColumn(rows, idx[name]) {
			extras = append(extras, name)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows))
	for line, row := range rows {
		date, err := ParseDate(cell(row, ColDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}

		rec := Record{
			Date:       date,
			Admissions: ParseNumber(cell(row, ColAdmissions)),
			DayName:    cell(row, ColDayName),
			Season:     cell(row, ColSeason),
			Holiday:    parseFlag(cell(row, ColHoliday)),
			TempMean:   ParseNumber(cell(row, ColTempMean)),
			TempMin:    ParseNumber(cell(row, ColTempMin)),
			TempMax:    ParseNumber(cell(row, ColTempMax)),
			Weather:    cell(row, ColWeather),
			Event:      cell(row, ColEvent),
			Impact:     ParseNumber(cell(row, ColImpact)),
			Extra:      make(map[string]float64, len(extras)),
		}
		if y := ParseNumber(cell(row, ColYear)); !math.IsNaN(y) {
			rec.Year = int(y)
		}
		for _, name := range extras {
			rec.Extra[name] = ParseNumber(cell(row, name))
		}
		records = append(records, rec)
	}

	return New(records, extras)
}

// ParseNumber parses a float that may use a decimal comma. Empty or invalid
// cells yield NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "vrai", "oui", "yes":
		return true
	}
	return false
}

func numericColumn(rows [][]string, col int) bool {
	seen := false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		if math.IsNaN(ParseNumber(v)) {
			return false
		}
		seen = true
	}
	return seen
}
