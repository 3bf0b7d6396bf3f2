// Package resources turns admissions forecasts into bed and staffing needs.
package resources

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// Ratios applied to predicted admissions.
const (
	HospitalisationRatio = 0.65
	DischargeRatio       = 0.95
	PatientsPerStaff     = 3.5
	DefaultBedsTotal     = 1650
)

// Bed occupancy thresholds.
const (
	BedsCritical = 0.85
	BedsWatch    = 0.75
)

// Status labels.
const (
	StatusOK       = "ok"
	StatusWatch    = "watch"
	StatusCritical = "critical"

	StaffSufficient       = "sufficient"
	StaffFullMobilisation = "full_mobilisation"
	StaffReinforcement    = "reinforcement"
)

// Capacity is the hospital's bed and staff baseline.
type Capacity struct {
	BedsTotal     int `json:"beds_total"`
	BaselineStaff int `json:"baseline_staff"`
}

// CapacityFrom reads the latest bed count and the mean available staff
// from the history. Missing columns give the default bed count and a zero
// staff baseline.
func CapacityFrom(s *series.Series) Capacity {
	c := Capacity{BedsTotal: DefaultBedsTotal}
	if s == nil || s.Len() == 0 {
		return c
	}
	if s.HasColumn(series.ColBedsTotal) {
		if v := s.Last().Value(series.ColBedsTotal); !math.IsNaN(v) && v > 0 {
			c.BedsTotal = int(v)
		}
	}

	var staff float64
	for _, col := range []string{series.ColDoctors, series.ColNurses, series.ColCareAides} {
		if !s.HasColumn(col) {
			continue
		}
		if m := finiteMean(s.Column(col)); !math.IsNaN(m) {
			staff += m
		}
	}
	c.BaselineStaff = int(staff)
	return c
}

// Estimate is the resource need of one day.
type Estimate struct {
	Date             string  `json:"date"`
	Admissions       float64 `json:"admissions"`
	Hospitalisations int     `json:"hospitalisations"`
	Discharges       int     `json:"discharges"`
	Urgences         float64 `json:"urgences"`
	Occupation       float64 `json:"occupation"`
	BedsTotal        int     `json:"beds_total"`
	BedsOccupied     int     `json:"beds_occupied"`
	BedsFree         int     `json:"beds_free"`
	BedStatus        string  `json:"bed_status"`
	StaffNeeded      int     `json:"staff_needed"`
	BaselineStaff    int     `json:"baseline_staff"`
	StaffStatus      string  `json:"staff_status"`
}

// Estimate derives the needs of a forecast day.
func (c Capacity) Estimate(day forecast.Day) Estimate {
	occupied := int(float64(c.BedsTotal) * day.Occupation)
	staff := int(float64(occupied) / PatientsPerStaff)
	return Estimate{
		Date:             day.DateJ,
		Admissions:       day.Prediction,
		Hospitalisations: int(day.Prediction * HospitalisationRatio),
		Discharges:       int(day.Prediction * DischargeRatio),
		Urgences:         day.Urgences,
		Occupation:       day.Occupation,
		BedsTotal:        c.BedsTotal,
		BedsOccupied:     occupied,
		BedsFree:         c.BedsTotal - occupied,
		BedStatus:        BedStatus(day.Occupation),
		StaffNeeded:      staff,
		BaselineStaff:    c.BaselineStaff,
		StaffStatus:      StaffStatus(staff, c.BaselineStaff),
	}
}

// BedStatus classifies an occupancy fraction.
func BedStatus(occupation float64) string {
	switch {
	case occupation > BedsCritical:
		return StatusCritical
	case occupation > BedsWatch:
		return StatusWatch
	}
	return StatusOK
}

// StaffStatus compares the staff needed with the usual headcount.
func StaffStatus(needed, baseline int) string {
	switch {
	case float64(needed) > float64(baseline)*1.1:
		return StaffReinforcement
	case needed > baseline:
		return StaffFullMobilisation
	}
	return StaffSufficient
}

// Summary aggregates a batch of estimates.
type Summary struct {
	Days             int        `json:"days"`
	BedsTotal        int        `json:"beds_total"`
	PeakBedsOccupied int        `json:"peak_beds_occupied"`
	MeanBedsOccupied int        `json:"mean_beds_occupied"`
	PeakStaffNeeded  int        `json:"peak_staff_needed"`
	MeanStaffNeeded  int        `json:"mean_staff_needed"`
	MeanAdmissions   float64    `json:"mean_admissions"`
	MeanUrgences     float64    `json:"mean_urgences"`
	MeanOccupation   float64    `json:"mean_occupation"`
	CriticalDays     []string   `json:"critical_days,omitempty"`
	Estimates        []Estimate `json:"estimates"`
}

// Summarize estimates every day of a batch and aggregates the peaks and means.
func (c Capacity) Summarize(batch *forecast.Batch) Summary {
	s := Summary{Days: len(batch.Days), BedsTotal: c.BedsTotal}
	if s.Days == 0 {
		return s
	}

	beds := make([]float64, s.Days)
	staff := make([]float64, s.Days)
	adm := make([]float64, s.Days)
	urg := make([]float64, s.Days)
	occ := make([]float64, s.Days)
	for i, day := range batch.Days {
		e := c.Estimate(day)
		s.Estimates = append(s.Estimates, e)
		s.PeakBedsOccupied = max(s.PeakBedsOccupied, e.BedsOccupied)
		s.PeakStaffNeeded = max(s.PeakStaffNeeded, e.StaffNeeded)
		if e.BedStatus == StatusCritical {
			s.CriticalDays = append(s.CriticalDays, e.Date)
		}
		beds[i] = float64(e.BedsOccupied)
		staff[i] = float64(e.StaffNeeded)
		adm[i] = e.Admissions
		urg[i] = e.Urgences
		occ[i] = e.Occupation
	}
	s.MeanBedsOccupied = int(stat.Mean(beds, nil))
	s.MeanStaffNeeded = int(stat.Mean(staff, nil))
	s.MeanAdmissions = stat.Mean(adm, nil)
	s.MeanUrgences = stat.Mean(urg, nil)
	s.MeanOccupation = stat.Mean(occ, nil)
	return s
}

func finiteMean(values []float64) float64 {
	vals := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}
