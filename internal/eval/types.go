package eval

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// BaselinePrefix marks naive benchmark entries in a Report.
const BaselinePrefix = "baseline_"

// Metrics is the error suite for one model or baseline on the test set.
// NaN values are encoded as JSON null.
type Metrics struct {
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	MAPE  float64 `json:"mape"`
	SMAPE float64 `json:"smape"`
}

type wireMetrics struct {
	MAE   *float64 `json:"mae"`
	RMSE  *float64 `json:"rmse"`
	MAPE  *float64 `json:"mape"`
	SMAPE *float64 `json:"smape"`
}

// MarshalJSON writes NaN as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMetrics{
		MAE:   finite(m.MAE),
		RMSE:  finite(m.RMSE),
		MAPE:  finite(m.MAPE),
		SMAPE: finite(m.SMAPE),
	})
}

// UnmarshalJSON reads null as NaN.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var w wireMetrics
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.MAE = orNaN(w.MAE)
	m.RMSE = orNaN(w.RMSE)
	m.MAPE = orNaN(w.MAPE)
	m.SMAPE = orNaN(w.SMAPE)
	return nil
}

// Report maps model and baseline names to their test metrics.
type Report map[string]Metrics

// Ranked is one Report entry.
type Ranked struct {
	Name     string  `json:"name"`
	Baseline bool    `json:"baseline"`
	Metrics  Metrics `json:"metrics"`
}

// Ranking orders entries by MAE ascending; NaN MAE sorts last, ties by name.
func (r Report) Ranking() []Ranked {
	out := make([]Ranked, 0, len(r))
	for name, m := range r {
		out = append(out, Ranked{Name: name, Baseline: IsBaseline(name), Metrics: m})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metrics.MAE, out[j].Metrics.MAE
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			return out[i].Name < out[j].Name
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case a != b:
			return a < b
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BestModel returns the trained model with the lowest MAE.
func (r Report) BestModel() (string, bool) {
	for _, e := range r.Ranking() {
		if !e.Baseline && !math.IsNaN(e.Metrics.MAE) {
			return e.Name, true
		}
	}
	return "", false
}

// IsBaseline reports whether name is a naive benchmark.
func IsBaseline(name string) bool {
	return strings.HasPrefix(name, BaselinePrefix)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
