// Package inference selects a feature row for a target date, applies
// scenario overrides and runs the model on it.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

// DefaultSafetyMargin inflates the point estimate for the conservative figure.
const DefaultSafetyMargin = 0.10

var (
	// ErrNoDataForDate is returned when no complete feature row exists for
	// the requested date.
	ErrNoDataForDate = errors.New("no data for that date")
	// ErrIncompleteRow is returned when a row holds NaN in a model column.
	ErrIncompleteRow = errors.New("feature row has undefined values")
)

// Prepare returns the feature row to predict from. With a zero date it is
// the most recent complete row; otherwise the last complete row dated date.
func Prepare(t *features.Table, columns []string, date time.Time) (features.Row, error) {
	valid := t.Complete(columns)
	if len(valid) == 0 {
		return features.Row{}, fmt.Errorf("%w: no complete row in history", ErrNoDataForDate)
	}
	if date.IsZero() {
		return valid[len(valid)-1].Clone(), nil
	}

	date = series.Truncate(date)
	for i := len(valid) - 1; i >= 0; i-- {
		if valid[i].Date.Equal(date) {
			return valid[i].Clone(), nil
		}
	}
	return features.Row{}, fmt.Errorf("%w: %s", ErrNoDataForDate, date.Format(series.DateLayout))
}

// OverrideReport lists the requested categories the manifest has no column
// for. Their group is still cleared.
type OverrideReport struct {
	Missed []features.UnknownCategory
}

// Applied reports whether every requested override found its column.
func (r OverrideReport) Applied() bool { return len(r.Missed) == 0 }

// Warning describes the missed categories, empty when none.
func (r OverrideReport) Warning() string {
	if r.Applied() {
		return ""
	}
	names := make([]string, len(r.Missed))
	for i, m := range r.Missed {
		names[i] = m.String()
	}
	return "categories absent from the feature manifest, override has no effect: " + strings.Join(names, ", ")
}

// ApplyOverrides returns a copy of row where the weather and event one-hot
// groups are cleared and the requested category set. An empty value leaves
// its group untouched. Applying the same override twice is a no-op.
func ApplyOverrides(row features.Row, columns []string, weather, event string) (features.Row, OverrideReport) {
	row = row.Clone()
	var report OverrideReport

	apply := func(prefix, label string) {
		if label == "" {
			return
		}
		target := features.CategoryColumn(prefix, label)
		found := false
		for _, c := range columns {
			if !strings.HasPrefix(c, prefix) {
				continue
			}
			if c == target {
				row.Set(c, 1)
				found = true
			} else {
				row.Set(c, 0)
			}
		}
		if !found {
			report.Missed = append(report.Missed, features.UnknownCategory{Prefix: prefix, Label: label})
		}
	}

	apply(features.WeatherPrefix, weather)
	apply(features.EventPrefix, event)
	if weather != "" {
		row.Weather = weather
	}
	if event != "" {
		row.Event = event
	}
	return row, report
}

// Result is a single-day prediction.
type Result struct {
	Prediction     float64
	PredictionSafe float64
	DateJ          time.Time
}

type wireResult struct {
	Prediction     float64 `json:"prediction"`
	PredictionSafe float64 `json:"prediction_safe"`
	DateJ          string  `json:"date_J"`
}

// MarshalJSON encodes the reference date as YYYY-MM-DD.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResult{
		Prediction:     r.Prediction,
		PredictionSafe: r.PredictionSafe,
		DateJ:          r.DateJ.Format(series.DateLayout),
	})
}

// UnmarshalJSON decodes the wire form.
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d, err := series.ParseDate(w.DateJ)
	if err != nil {
		return err
	}
	*r = Result{Prediction: w.Prediction, PredictionSafe: w.PredictionSafe, DateJ: d}
	return nil
}

// Predict runs model on the manifest columns of row. The safe estimate is
// prediction * (1 + margin).
func Predict(row features.Row, model models.Regressor, columns []string, margin float64) (Result, error) {
	x, err := row.Vector(columns)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", artifacts.ErrFeatureMismatch, err)
	}
	for i, v := range x {
		if math.IsNaN(v) {
			return Result{}, fmt.Errorf("%w: %s", ErrIncompleteRow, columns[i])
		}
	}

	out, err := model.Predict([][]float64{x})
	if err != nil {
		return Result{}, fmt.Errorf("%s prediction failed: %w", model.Name(), err)
	}
	return Result{
		Prediction:     out[0],
		PredictionSafe: out[0] * (1 + margin),
		DateJ:          row.Date,
	}, nil
}
