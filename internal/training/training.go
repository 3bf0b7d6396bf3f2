// Package training fits the regressor variants on the supervised table and
// benchmarks them against naive baselines over a chronological test split.
package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/pkg/otel"
)

// ErrInsufficientHistory is returned when the series yields no usable
// training or test rows. Retrying cannot help.
var ErrInsufficientHistory = errors.New("insufficient history for training")

// Config defines the training run.
type Config struct {
	TrainRatio   float64
	Models       []string
	DefaultModel string
	Params       models.Params
	Features     features.Config
}

// DefaultConfig returns the production training configuration.
func DefaultConfig() *Config {
	return &Config{
		TrainRatio:   0.8,
		Models:       []string{models.GradientBoosting, models.RandomForest},
		DefaultModel: models.GradientBoosting,
		Features:     features.DefaultConfig(),
	}
}

// Validate rejects configurations that cannot produce a split.
func (c *Config) Validate() error {
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("train ratio must be in (0, 1), got %v", c.TrainRatio)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	for _, name := range c.Models {
		if _, err := models.New(name, c.Params); err != nil {
			return err
		}
	}
	return nil
}

// Result is a trained model set with its evaluation.
type Result struct {
	Columns      []string
	Models       map[string]models.Regressor
	Report       eval.Report
	DefaultModel string
	Skipped      map[string]string
	Comparisons  []eval.Comparison // default model against each baseline
	TrainRows    int
	TestRows     int
	TestStart    time.Time
	TrainedAt    time.Time
	Duration     time.Duration
}

// Trainer runs training jobs.
type Trainer struct {
	config  *Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewTrainer creates a trainer. logger and m may be nil.
func NewTrainer(config *Config, logger *zap.Logger, m *metrics.Metrics) *Trainer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Trainer{
		config:  config,
		logger:  logging.OrNop(logger),
		metrics: m,
		now:     time.Now,
	}
}

// Train builds the table, splits it chronologically, fits every configured
// variant and evaluates models and baselines on the test rows.
func (t *Trainer) Train(ctx context.Context, s *series.Series) (*Result, error) {
	start := t.now()
	res, err := t.train(ctx, s)
	elapsed := t.now().Sub(start)

	if err != nil {
		t.metrics.ObserveTraining("failure", elapsed.Seconds(), nil)
		return nil, err
	}

	res.Duration = elapsed
	mae := make(map[string]float64, len(res.Report))
	for name, m := range res.Report {
		mae[name] = m.MAE
	}
	t.metrics.ObserveTraining("success", elapsed.Seconds(), mae)
	return res, nil
}

func (t *Trainer) train(ctx context.Context, s *series.Series) (*Result, error) {
	if err := t.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}

	tbl := features.Build(s, t.config.Features)
	columns := features.SelectColumns(tbl)
	rows := tbl.Complete(append(append([]string{}, columns...), features.TargetColumn))

	train, test, err := Split(rows, t.config.TrainRatio)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.StartSpan(ctx, "training.train", otel.TrainingAttributes(len(rows), t.config.Models)...)
	defer span.End()

	Xtrain, ytrain, err := Matrix(train, columns)
	if err != nil {
		otel.RecordError(span, err, "build train matrix")
		return nil, err
	}
	Xtest, ytest, err := Matrix(test, columns)
	if err != nil {
		otel.RecordError(span, err, "build test matrix")
		return nil, err
	}

	t.logger.Info("training started",
		zap.Int("rows", len(rows)),
		zap.Int("train_rows", len(train)),
		zap.Int("test_rows", len(test)),
		zap.Int("features", len(columns)),
		zap.Strings("models", t.config.Models),
	)

	report := eval.Report{}
	baselines := Baselines(test)
	for name, pred := range baselines {
		report[name] = eval.Evaluate(ytest, pred)
	}
	predictions := make(map[string][]float64, len(t.config.Models))

	fitted := make(map[string]models.Regressor, len(t.config.Models))
	skipped := make(map[string]string)
	for _, name := range t.config.Models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := models.New(name, t.config.Params)
		if err != nil {
			return nil, err
		}
		fitStart := t.now()
		if err := r.Fit(Xtrain, ytrain); err != nil {
			t.logger.Warn("model fit failed, skipping", zap.String("model", name), zap.Error(err))
			skipped[name] = err.Error()
			continue
		}
		pred, err := r.Predict(Xtest)
		if err != nil {
			t.logger.Warn("model evaluation failed, skipping", zap.String("model", name), zap.Error(err))
			skipped[name] = err.Error()
			continue
		}

		m := eval.Evaluate(ytest, pred)
		report[name] = m
		fitted[name] = r
		predictions[name] = pred
		t.logger.Info("model trained",
			zap.String("model", name),
			zap.Float64("mae", m.MAE),
			zap.Float64("rmse", m.RMSE),
			zap.Duration("duration", t.now().Sub(fitStart)),
		)
	}

	if len(fitted) == 0 {
		err := fmt.Errorf("no model variant could be fitted: %v", skipped)
		otel.RecordError(span, err, "")
		return nil, err
	}

	def := t.config.DefaultModel
	if _, ok := fitted[def]; !ok {
		def, _ = report.BestModel()
	}
	comparisons := compareBaselines(def, ytest, predictions[def], baselines, t.config.Params.EffectiveSeed())

	return &Result{
		Columns:      columns,
		Models:       fitted,
		Report:       report,
		DefaultModel: def,
		Skipped:      skipped,
		Comparisons:  comparisons,
		TrainRows:    len(train),
		TestRows:     len(test),
		TestStart:    test[0].Date,
		TrainedAt:    t.now().UTC(),
	}, nil
}

func compareBaselines(model string, ytest, pred []float64, baselines map[string][]float64, seed uint64) []eval.Comparison {
	names := make([]string, 0, len(baselines))
	for name := range baselines {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]eval.Comparison, 0, len(names))
	for _, name := range names {
		out = append(out, eval.Compare(model, name, ytest, pred, baselines[name],
			eval.DefaultPermutations, eval.DefaultResamples, seed))
	}
	return out
}

// Split cuts rows chronologically at floor(N * ratio). Both parts must be
// non-empty.
func Split(rows []features.Row, ratio float64) (train, test []features.Row, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("train ratio must be in (0, 1), got %v", ratio)
	}
	cut := int(float64(len(rows)) * ratio)
	if cut == 0 || cut == len(rows) {
		return nil, nil, fmt.Errorf("%w: %d valid rows", ErrInsufficientHistory, len(rows))
	}
	return rows[:cut], rows[cut:], nil
}

// Matrix extracts the design matrix over columns and the target vector.
func Matrix(rows []features.Row, columns []string) ([][]float64, []float64, error) {
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		v, err := r.Vector(columns)
		if err != nil {
			return nil, nil, err
		}
		X[i] = v
		y[i] = r.Get(features.TargetColumn)
	}
	return X, y, nil
}

// ArtifactSet packages the result for the artifact store.
func (r *Result) ArtifactSet() *artifacts.Set {
	return &artifacts.Set{
		Columns:      r.Columns,
		Report:       r.Report,
		Models:       r.Models,
		DefaultModel: r.DefaultModel,
		TrainedAt:    r.TrainedAt,
		TrainRows:    r.TrainRows,
		TestRows:     r.TestRows,
	}
}
