package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the forecasting service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Serving
	PredictionsBySource *prometheus.CounterVec
	FallbacksByReason   *prometheus.CounterVec
	PredictionLatency   *prometheus.HistogramVec
	ForecastDays        prometheus.Histogram

	// Training
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	ModelTestMAE     *prometheus.GaugeVec

	// Similarity
	NeighbourDistance prometheus.Histogram
	LowConfidence     prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter

	// Journal and store
	JournalErrors prometheus.Counter
	StoreErrors   prometheus.Counter
}

// New creates and registers all collectors on reg. Use a fresh
// prometheus.NewRegistry() per instance in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PredictionsBySource: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcare_predictions_total",
				Help: "Number of J+4 predictions served, by producing stage",
			},
			[]string{"source"},
		),
		FallbacksByReason: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcare_fallbacks_total",
				Help: "Number of times a prediction stage fell through to the next one",
			},
			[]string{"from", "reason"},
		),
		PredictionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartcare_prediction_duration_seconds",
				Help:    "Time to produce a prediction",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"mode"},
		),
		ForecastDays: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcare_forecast_days",
			Help:    "Number of days requested per multi-day forecast",
			Buckets: []float64{1, 7, 14, 30, 60, 90},
		}),
		TrainingRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcare_training_runs_total",
				Help: "Number of training runs, by outcome",
			},
			[]string{"outcome"},
		),
		TrainingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcare_training_duration_seconds",
			Help:    "Wall time of a training run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ModelTestMAE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smartcare_model_test_mae",
				Help: "Test set MAE of the last training run, by model or baseline",
			},
			[]string{"model"},
		),
		NeighbourDistance: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcare_neighbour_distance",
			Help:    "Weighted distance of selected k-NN neighbours",
			Buckets: []float64{0, 0.5, 1, 2, 3, 5, 8, 12},
		}),
		LowConfidence: f.NewCounter(prometheus.CounterOpts{
			Name: "smartcare_neighbour_low_confidence_total",
			Help: "Number of neighbour searches flagged as low confidence",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "smartcare_neighbour_cache_hits_total",
			Help: "Number of neighbour searches served from cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "smartcare_neighbour_cache_misses_total",
			Help: "Number of neighbour searches computed",
		}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "smartcare_journal_errors_total",
			Help: "Number of prediction journal write errors",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "smartcare_store_errors_total",
			Help: "Number of review store write errors",
		}),
	}
}

// ObservePrediction counts a served prediction.
func (m *Metrics) ObservePrediction(source string) {
	if m == nil {
		return
	}
	m.PredictionsBySource.WithLabelValues(source).Inc()
}

// ObserveFallback counts a stage falling through.
func (m *Metrics) ObserveFallback(from, reason string) {
	if m == nil {
		return
	}
	m.FallbacksByReason.WithLabelValues(from, reason).Inc()
}

// ObserveLatency records the duration of a prediction in seconds.
func (m *Metrics) ObserveLatency(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.PredictionLatency.WithLabelValues(mode).Observe(seconds)
}

// ObserveForecast records the size of a batch request.
func (m *Metrics) ObserveForecast(days int) {
	if m == nil {
		return
	}
	m.ForecastDays.Observe(float64(days))
}

// ObserveTraining records one training run and its per-model MAE.
func (m *Metrics) ObserveTraining(outcome string, seconds float64, mae map[string]float64) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(outcome).Inc()
	m.TrainingDuration.Observe(seconds)
	for name, v := range mae {
		m.ModelTestMAE.WithLabelValues(name).Set(v)
	}
}

// ObserveNeighbours records the distances of a neighbour search.
func (m *Metrics) ObserveNeighbours(distances []float64, lowConfidence bool) {
	if m == nil {
		return
	}
	for _, d := range distances {
		m.NeighbourDistance.Observe(d)
	}
	if lowConfidence {
		m.LowConfidence.Inc()
	}
}

// ObserveCache counts a neighbour cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveJournalError counts a failed journal append.
func (m *Metrics) ObserveJournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

// ObserveStoreError counts a failed review store write.
func (m *Metrics) ObserveStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
