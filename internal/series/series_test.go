package series

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

const sampleCSV = `date,jour_semaine,saison,vacances_scolaires,temperature_moyenne,temperature_min,temperature_max,meteo_principale,evenement_special,impact_evenement_estime,annee,nombre_admissions,nombre_passages_urgences,taux_occupation_lits,hopital
2024-01-02,Mardi,Hiver,0,"5,5",1,9,Pluie,Aucun,0,2024,120,300,"0,72",HEGP
2024-01-01,Lundi,Hiver,1,4,0,8,Froid,Epidemie_grippe,"0,3",2024,130,320,0.80,HEGP
2024-01-03,,,False,x,2,10,Soleil,,,,110,280,0.70,HEGP
`

func TestReadCSV(t *testing.T) {
	s, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	// Sorted ascending
	first := s.First()
	if got := first.Date.Format(DateLayout); got != "2024-01-01" {
		t.Errorf("first date = %s, want 2024-01-01", got)
	}
	if !first.Holiday {
		t.Error("first row should be a holiday")
	}
	if math.Abs(first.Impact-0.3) > 1e-9 {
		t.Errorf("impact = %v, want 0.3 (decimal comma)", first.Impact)
	}

	second := s.Records[1]
	if math.Abs(second.TempMean-5.5) > 1e-9 {
		t.Errorf("temp mean = %v, want 5.5", second.TempMean)
	}

	// Derived labels for the row with blanks
	last := s.Last()
	if last.DayName != "Mercredi" {
		t.Errorf("derived day name = %q, want Mercredi", last.DayName)
	}
	if last.Season != SeasonWinter {
		t.Errorf("derived season = %q, want %q", last.Season, SeasonWinter)
	}
	if last.Year != 2024 {
		t.Errorf("derived year = %d, want 2024", last.Year)
	}
	if !math.IsNaN(last.TempMean) {
		t.Errorf("invalid temperature should be NaN, got %v", last.TempMean)
	}
	if !math.IsNaN(last.Impact) {
		t.Errorf("absent impact should be NaN, got %v", last.Impact)
	}

	// Numeric extras kept, text columns dropped
	if !s.HasColumn(ColUrgences) || !s.HasColumn(ColOccupancy) {
		t.Errorf("expected numeric extras, got %v", s.ExtraColumns)
	}
	if s.HasColumn("hopital") {
		t.Error("text column should not be kept")
	}
	if got := second.Value(ColOccupancy); math.Abs(got-0.72) > 1e-9 {
		t.Errorf("occupancy = %v, want 0.72", got)
	}
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	s, err := ReadCSV(strings.NewReader("\ufeff" + sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV with BOM failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if got := s.First().Date.Format(DateLayout); got != "2024-01-01" {
		t.Errorf("first date = %s, want 2024-01-01", got)
	}
}

func TestNewRejectsDuplicateDates(t *testing.T) {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := New([]Record{{Date: d}, {Date: d}}, nil)
	if !errors.Is(err, ErrUnsorted) {
		t.Fatalf("expected ErrUnsorted, got %v", err)
	}

	if _, err := New(nil, nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var recs []Record
	for i := 0; i < 5; i++ {
		recs = append(recs, Record{Date: base.AddDate(0, 0, i), Admissions: float64(i)})
	}
	s, err := New(recs, nil)
	if err != nil {
		t.Fatal(err)
	}

	if i, ok := s.Index(base.AddDate(0, 0, 3).Add(5 * time.Hour)); !ok || i != 3 {
		t.Errorf("Index = (%d, %v), want (3, true)", i, ok)
	}
	if _, ok := s.Index(base.AddDate(0, 0, 10)); ok {
		t.Error("Index should miss out-of-range dates")
	}
}

func TestCalendar(t *testing.T) {
	tests := []struct {
		date   string
		day    string
		season string
	}{
		{"2024-01-01", "Lundi", SeasonWinter},
		{"2024-03-10", "Dimanche", SeasonSpring},
		{"2024-07-13", "Samedi", SeasonSummer},
		{"2024-10-04", "Vendredi", SeasonAutumn},
		{"2024-12-25", "Mercredi", SeasonWinter},
	}

	for _, tt := range tests {
		d, err := ParseDate(tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := DayName(d); got != tt.day {
			t.Errorf("DayName(%s) = %s, want %s", tt.date, got, tt.day)
		}
		if got := SeasonOf(d.Month()); got != tt.season {
			t.Errorf("SeasonOf(%s) = %s, want %s", tt.date, got, tt.season)
		}
	}

	if NormalizeSeason("Ete") != SeasonSummer {
		t.Error("Ete should normalize to Été")
	}
}
