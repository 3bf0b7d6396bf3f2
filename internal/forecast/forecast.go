// Package forecast serves admissions forecasts through the fallback chain:
// the trained model on a real feature row, the model on a row with lags
// synthesised from similar days, then historical statistics.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/cache"
	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/inference"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
	"github.com/YassChaai/SmartCare-Analytics/internal/trend"
	"github.com/YassChaai/SmartCare-Analytics/pkg/otel"
)

// Sources of a prediction.
const (
	SourceML    = "ml"
	SourceKNN   = "knn"
	SourceStats = "stats"
)

// Reasons recorded when a stage falls through.
const (
	ReasonModelUnavailable = "model_unavailable"
	ReasonNoNeighbours     = "no_neighbours"
	ReasonNoBaseRow        = "no_base_row"
	ReasonPredictFailed    = "predict_failed"
)

// MaxDays bounds a batch request.
const MaxDays = 90

// ErrInvalidRange is returned for batch sizes outside 1..MaxDays.
var ErrInvalidRange = fmt.Errorf("days must be between 1 and %d", MaxDays)

// ModelLoader resolves a trained model by name; an empty name selects the
// default model. *artifacts.Store implements it.
type ModelLoader interface {
	Load(ctx context.Context, name string) (*artifacts.Loaded, error)
}

// Config tunes the forecaster.
type Config struct {
	K            int
	Weights      similarity.Weights
	SafetyMargin float64
	TrendYears   int
	Features     features.Config
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		K:            similarity.DefaultK,
		Weights:      similarity.DefaultWeights(),
		SafetyMargin: inference.DefaultSafetyMargin,
		TrendYears:   trend.DefaultYears,
		Features:     features.DefaultConfig(),
	}
}

// Request is a single-day forecast request.
type Request struct {
	Date        time.Time
	Weather     string
	Event       string
	Holiday     bool
	Temperature float64 // NaN: month mean from history
	Model       string
	// TrendPct replaces the historical trend when set.
	TrendPct *float64
}

// Day is one forecast day. Occupation is a bed occupancy fraction.
type Day struct {
	Date           time.Time           `json:"-"`
	DateJ          string              `json:"date_J"`
	Prediction     float64             `json:"prediction"`
	PredictionSafe float64             `json:"prediction_safe"`
	Source         string              `json:"source"`
	Model          string              `json:"model,omitempty"`
	TrendPct       float64             `json:"trend_pct"`
	Urgences       float64             `json:"urgences"`
	Occupation     float64             `json:"occupation"`
	Neighbours     *similarity.Quality `json:"neighbours,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// Batch is a multi-day forecast.
type Batch struct {
	Start    string   `json:"start"`
	Source   string   `json:"source"`
	Model    string   `json:"model,omitempty"`
	Days     []Day    `json:"days"`
	Warnings []string `json:"warnings,omitempty"`
}

// Forecaster answers forecast requests over a fixed history snapshot. It is
// safe for concurrent use.
type Forecaster struct {
	series  *series.Series
	table   *features.Table
	loader  ModelLoader
	cache   *cache.Neighbours
	config  Config
	trend   trend.Trend
	profile profile
	version string
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	models map[string]*artifacts.Loaded
}

// New builds the feature table and the history profile. loader, logger and
// m may be nil; without a loader every request is served by statistics.
func New(s *series.Series, loader ModelLoader, config Config, logger *zap.Logger, m *metrics.Metrics) *Forecaster {
	if config.K <= 0 {
		config.K = similarity.DefaultK
	}
	if config.TrendYears <= 0 {
		config.TrendYears = trend.DefaultYears
	}
	if len(config.Features.Lags) == 0 {
		config.Features = features.DefaultConfig()
	}
	return &Forecaster{
		series:  s,
		table:   features.Build(s, config.Features),
		loader:  loader,
		config:  config,
		trend:   trend.Between(s, config.TrendYears),
		profile: newProfile(s),
		version: fmt.Sprintf("%s/%d", s.Last().Date.Format(series.DateLayout), s.Len()),
		logger:  logging.OrNop(logger),
		metrics: m,
		models:  make(map[string]*artifacts.Loaded),
	}
}

// WithCache memoises neighbour searches in c.
func (f *Forecaster) WithCache(c *cache.Neighbours) *Forecaster {
	f.cache = c
	return f
}

// Series returns the history snapshot.
func (f *Forecaster) Series() *series.Series { return f.series }

// Table returns the feature table built from the history.
func (f *Forecaster) Table() *features.Table { return f.table }

// Trend returns the historical trend applied to extrapolated days.
func (f *Forecaster) Trend() trend.Trend { return f.trend }

// Validate loads the default model and checks that its manifest can be
// computed from the history. Unknown historical categories are returned
// as warnings.
func (f *Forecaster) Validate(ctx context.Context) ([]string, error) {
	loaded, err := f.model(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, c := range loaded.Columns {
		if !f.table.HasColumn(c) {
			return nil, fmt.Errorf("%w: column %q cannot be built from history", artifacts.ErrFeatureMismatch, c)
		}
	}
	unknown, err := features.ValidateCategories(loaded.Columns, f.table)
	if err == nil {
		return nil, nil
	}
	warnings := make([]string, len(unknown))
	for i, u := range unknown {
		warnings[i] = fmt.Sprintf("category %s absent from the feature manifest, it has no effect", u)
	}
	f.logger.Warn("historical categories missing from manifest", zap.Error(err))
	return warnings, nil
}

// Predict forecasts a single day, cascading to simpler estimators when a
// stage fails. It only errors on a cancelled context.
func (f *Forecaster) Predict(ctx context.Context, req Request) (*Day, error) {
	start := time.Now()
	defer func() { f.metrics.ObserveLatency("single", time.Since(start).Seconds()) }()

	req.Date = series.Truncate(req.Date)
	ctx, span := otel.StartSpan(ctx, "forecast.predict", otel.PredictionAttributes(req.Date.Format(series.DateLayout), req.Model)...)
	defer span.End()

	day, reason, err := f.predictModel(ctx, req)
	if err == nil {
		span.SetAttributes(otel.AttrSource.String(day.Source))
		f.metrics.ObservePrediction(day.Source)
		return day, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	f.logger.Warn("model prediction unavailable, using statistics",
		zap.String("target_date", req.Date.Format(series.DateLayout)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	f.metrics.ObserveFallback(SourceML, reason)

	day = f.predictStats(req)
	day.Warnings = append(day.Warnings, fmt.Sprintf("statistical estimate (%s): %v", reason, err))
	span.SetAttributes(otel.AttrSource.String(day.Source))
	f.metrics.ObservePrediction(day.Source)
	return day, nil
}

func (f *Forecaster) predictModel(ctx context.Context, req Request) (*Day, string, error) {
	loaded, err := f.model(ctx, req.Model)
	if err != nil {
		return nil, ReasonModelUnavailable, err
	}

	day := &Day{Source: SourceML, Model: loaded.Name}
	row, err := inference.Prepare(f.table, loaded.Columns, req.Date)
	switch {
	case err == nil:
	case errors.Is(err, inference.ErrNoDataForDate):
		var reason string
		row, reason, err = f.synthesize(ctx, loaded.Columns, req, day)
		if err != nil {
			return nil, reason, err
		}
		day.Source = SourceKNN
		day.TrendPct = f.trend.ExtrapolatedPct
		if req.TrendPct != nil {
			day.TrendPct = *req.TrendPct
		}
	default:
		return nil, ReasonNoBaseRow, err
	}

	row, report := inference.ApplyOverrides(row, loaded.Columns, req.Weather, req.Event)
	if w := report.Warning(); w != "" {
		day.Warnings = append(day.Warnings, w)
	}

	res, err := inference.Predict(row, loaded.Model, loaded.Columns, f.config.SafetyMargin)
	if err != nil {
		return nil, ReasonPredictFailed, err
	}

	factor := 1 + day.TrendPct/100
	f.fill(day, req.Date, res.Prediction*factor, res.PredictionSafe*factor)
	day.Occupation = f.profile.meanOccupation
	return day, "", nil
}

// synthesize builds a row for a date without real lags: the latest complete
// row, lags from the neighbours, the target calendar and temperature.
func (f *Forecaster) synthesize(ctx context.Context, columns []string, req Request, day *Day) (features.Row, string, error) {
	m := f.profile.temps(req.Date.Month())
	temp, low, high := req.Temperature, m.low, m.high
	if math.IsNaN(temp) {
		temp = m.mean
	} else {
		low, high = temp-(m.mean-m.low), temp+(m.high-m.mean)
	}
	d := similarity.NewDescriptor(req.Date, req.Holiday, temp,
		orDefault(req.Weather, similarity.DefaultWeather),
		orDefault(req.Event, similarity.DefaultEvent))

	s := f.search(ctx, d)
	q := similarity.Evaluate(s)
	day.Neighbours = &q
	if s.Count() == 0 {
		return features.Row{}, ReasonNoNeighbours, similarity.ErrNoNeighbours
	}
	if s.LowConfidence() {
		day.Warnings = append(day.Warnings, lowConfidenceWarning(s))
	}

	lags, err := similarity.SynthesizeLags(s.Candidates, f.config.Features)
	if err != nil {
		return features.Row{}, ReasonNoNeighbours, err
	}
	base, err := inference.Prepare(f.table, columns, time.Time{})
	if err != nil {
		return features.Row{}, ReasonNoBaseRow, err
	}

	row := similarity.ApplyLags(base, lags)
	row = features.Recalendar(row, req.Date, req.Holiday)
	features.SetTemperatures(row, temp, low, high)
	return row, "", nil
}

func (f *Forecaster) predictStats(req Request) *Day {
	temp := req.Temperature
	if math.IsNaN(temp) {
		temp = f.profile.temps(req.Date.Month()).mean
	}
	e := Stats(f.series, ScenarioFor(req.Date, req.Holiday, temp, orDefault(req.Event, series.NoEvent)))

	day := &Day{Source: SourceStats}
	f.fill(day, req.Date, e.Admissions, e.Admissions*(1+f.config.SafetyMargin))
	day.Urgences = e.Urgences
	day.Occupation = e.Occupation
	return day
}

// PredictRange forecasts days consecutive dates from start. Dates inside
// the history use their real rows; later dates get synthetic lags and
// month-typical weather. If the model fails on any day the whole batch is
// served by statistics.
func (f *Forecaster) PredictRange(ctx context.Context, start time.Time, days int, model string) (*Batch, error) {
	if days < 1 || days > MaxDays {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRange, days)
	}
	began := time.Now()
	defer func() { f.metrics.ObserveLatency("multi", time.Since(began).Seconds()) }()
	f.metrics.ObserveForecast(days)

	start = series.Truncate(start)
	ctx, span := otel.StartSpan(ctx, "forecast.range",
		otel.AttrTargetDate.String(start.Format(series.DateLayout)),
		otel.AttrDays.Int(days),
		otel.AttrModel.String(model),
	)
	defer span.End()

	batch, reason, err := f.rangeModel(ctx, start, days, model)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.logger.Warn("model batch unavailable, using statistics",
			zap.String("start", start.Format(series.DateLayout)),
			zap.Int("days", days),
			zap.String("reason", reason),
			zap.Error(err),
		)
		f.metrics.ObserveFallback(SourceML, reason)
		batch = f.rangeStats(start, days)
		batch.Warnings = append(batch.Warnings, fmt.Sprintf("statistical estimate (%s): %v", reason, err))
	}

	span.SetAttributes(otel.AttrSource.String(batch.Source))
	f.metrics.ObservePrediction(batch.Source)
	return batch, nil
}

func (f *Forecaster) rangeModel(ctx context.Context, start time.Time, days int, model string) (*Batch, string, error) {
	loaded, err := f.model(ctx, model)
	if err != nil {
		return nil, ReasonModelUnavailable, err
	}
	base, err := inference.Prepare(f.table, loaded.Columns, time.Time{})
	if err != nil {
		return nil, ReasonNoBaseRow, err
	}

	batch := &Batch{Start: start.Format(series.DateLayout), Source: SourceML, Model: loaded.Name}
	warned := make(map[string]bool)
	warn := func(w string) {
		if w != "" && !warned[w] {
			warned[w] = true
			batch.Warnings = append(batch.Warnings, w)
		}
	}

	last := f.table.LastDate()
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, ReasonPredictFailed, err
		}
		date := start.AddDate(0, 0, i)
		weather := monthWeather(date.Month())

		var row features.Row
		if !date.After(last) {
			row, err = inference.Prepare(f.table, loaded.Columns, date)
			if err != nil {
				return nil, ReasonNoBaseRow, err
			}
		} else {
			holiday := summerHoliday(date.Month())
			m := f.profile.temps(date.Month())
			d := similarity.NewDescriptor(date, holiday, m.mean, orDefault(weather, similarity.DefaultBatchWeather), similarity.DefaultEvent)

			row = base
			if s := f.search(ctx, d); s.Count() > 0 {
				if s.LowConfidence() {
					warn(lowConfidenceWarning(s))
				}
				lags, err := similarity.SynthesizeLags(s.Candidates, f.config.Features)
				if err != nil {
					return nil, ReasonNoNeighbours, err
				}
				row = similarity.ApplyLags(base, lags)
				batch.Source = SourceKNN
			} else {
				warn("no similar days found, latest lags reused")
			}
			row = features.Recalendar(row, date, holiday)
			features.SetTemperatures(row, m.mean, m.low, m.high)
		}

		row, report := inference.ApplyOverrides(row, loaded.Columns, weather, "")
		warn(report.Warning())

		res, err := inference.Predict(row, loaded.Model, loaded.Columns, f.config.SafetyMargin)
		if err != nil {
			return nil, ReasonPredictFailed, err
		}

		// Batch days are not trend adjusted, unlike single-day k-NN
		// predictions; TrendPct stays 0.
		day := Day{Source: SourceML, Model: loaded.Name}
		if date.After(last) {
			day.Source = SourceKNN
		}
		f.fill(&day, date, res.Prediction, res.PredictionSafe)
		day.Occupation = f.profile.occupancy(res.Prediction)
		batch.Days = append(batch.Days, day)
	}
	return batch, "", nil
}

func (f *Forecaster) rangeStats(start time.Time, days int) *Batch {
	batch := &Batch{Start: start.Format(series.DateLayout), Source: SourceStats}
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		e := Stats(f.series, ScenarioFor(date, false, 15.0, series.NoEvent))

		day := Day{Source: SourceStats}
		f.fill(&day, date, e.Admissions, e.Admissions*(1+f.config.SafetyMargin))
		day.Urgences = e.Urgences
		day.Occupation = f.profile.occupancy(e.Admissions)
		batch.Days = append(batch.Days, day)
	}
	return batch
}

// Similar runs a neighbour search for the API and CLI.
func (f *Forecaster) Similar(ctx context.Context, d similarity.Descriptor, k int) (*similarity.Search, similarity.Quality) {
	if k <= 0 {
		k = f.config.K
	}
	s := f.searchK(ctx, d, k)
	return s, similarity.Evaluate(s)
}

func (f *Forecaster) search(ctx context.Context, d similarity.Descriptor) *similarity.Search {
	return f.searchK(ctx, d, f.config.K)
}

func (f *Forecaster) searchK(ctx context.Context, d similarity.Descriptor, k int) *similarity.Search {
	var key string
	if f.cache != nil {
		key = cache.Key(f.version, d, k, f.config.Weights)
		if s, ok := f.cache.Get(key); ok {
			f.metrics.ObserveCache(true)
			return s
		}
		f.metrics.ObserveCache(false)
	}

	_, span := otel.StartSpan(ctx, "similarity.find", otel.AttrTargetDate.String(d.Date.Format(series.DateLayout)))
	s := similarity.FindSimilar(f.table, d, k, f.config.Weights)
	span.SetAttributes(otel.AttrNeighbours.Int(s.Count()))
	span.End()

	f.metrics.ObserveNeighbours(s.Distances(), s.LowConfidence())
	if s.LowConfidence() {
		f.logger.Warn("low confidence neighbour search",
			zap.String("target_date", d.Date.Format(series.DateLayout)),
			zap.Int("neighbours", s.Count()),
			zap.Int("k", k),
			zap.Strings("uniform", s.Uniform),
		)
	}
	if f.cache != nil {
		f.cache.Set(key, s)
	}
	return s
}

// model returns the named model, loading it once.
func (f *Forecaster) model(ctx context.Context, name string) (*artifacts.Loaded, error) {
	if f.loader == nil {
		return nil, fmt.Errorf("%w: no artifact store configured", artifacts.ErrMissingArtifact)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.models[name]; ok {
		return l, nil
	}

	ctx, span := otel.StartSpan(ctx, "artifacts.load", otel.AttrModel.String(name))
	defer span.End()
	l, err := f.loader.Load(ctx, name)
	if err != nil {
		otel.RecordError(span, err, "load model")
		return nil, err
	}
	span.SetAttributes(otel.AttrVersion.String(l.Version))

	f.models[name] = l
	f.models[l.Name] = l
	f.logger.Info("model loaded",
		zap.String("model", l.Name),
		zap.String("version", l.Version),
		zap.Int("features", len(l.Columns)),
	)
	return l, nil
}

func (f *Forecaster) fill(day *Day, date time.Time, pred, safe float64) {
	day.Date = date
	day.DateJ = date.Format(series.DateLayout)
	day.Prediction = pred
	day.PredictionSafe = safe
	if day.Source != SourceStats {
		day.Urgences = pred * f.profile.urgRatio
	}
}

// monthWeather is the weather assumed for future days of a month, empty
// when no override applies.
func monthWeather(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Froid"
	case time.June, time.July, time.August:
		return "Canicule"
	}
	return ""
}

func summerHoliday(m time.Month) bool {
	return m == time.July || m == time.August
}

func lowConfidenceWarning(s *similarity.Search) string {
	if len(s.Uniform) > 0 {
		return fmt.Sprintf("low confidence: no history for the requested %v, every day penalised equally", s.Uniform)
	}
	return fmt.Sprintf("low confidence: only %d similar days found out of %d", s.Count(), s.K)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
