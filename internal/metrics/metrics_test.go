package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePrediction("ml")
	m.ObservePrediction("ml")
	m.ObservePrediction("stats")
	if got := testutil.ToFloat64(m.PredictionsBySource.WithLabelValues("ml")); got != 2 {
		t.Errorf("Expected 2 ml predictions, got %v", got)
	}

	m.ObserveFallback("ml", "no_data")
	if got := testutil.ToFloat64(m.FallbacksByReason.WithLabelValues("ml", "no_data")); got != 1 {
		t.Errorf("Expected 1 fallback, got %v", got)
	}

	m.ObserveTraining("success", 1.5, map[string]float64{"gradient_boosting": 4.2})
	if got := testutil.ToFloat64(m.ModelTestMAE.WithLabelValues("gradient_boosting")); got != 4.2 {
		t.Errorf("Expected MAE gauge 4.2, got %v", got)
	}

	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	if got := testutil.ToFloat64(m.CacheMisses); got != 2 {
		t.Errorf("Expected 2 cache misses, got %v", got)
	}

	m.ObserveNeighbours([]float64{0, 1.5}, true)
	if got := testutil.ToFloat64(m.LowConfidence); got != 1 {
		t.Errorf("Expected 1 low confidence search, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// Every recorder is a no-op on nil
	m.ObservePrediction("ml")
	m.ObserveFallback("ml", "no_data")
	m.ObserveLatency("single", 0.1)
	m.ObserveForecast(7)
	m.ObserveTraining("success", 1, nil)
	m.ObserveNeighbours([]float64{1}, true)
	m.ObserveCache(true)
	m.ObserveJournalError()
	m.ObserveStoreError()
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
