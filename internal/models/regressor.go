// Package models holds the regressors trained on the supervised table and
// their JSON envelope.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Model names accepted by New.
const (
	GradientBoosting = "gradient_boosting"
	RandomForest     = "random_forest"
	LinearRegression = "linear_regression"
)

// EnvelopeVersion is the current serialization format.
const EnvelopeVersion = 1

var (
	// ErrUnknownModel is returned for a name missing from the registry.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotFitted is returned when predicting before Fit.
	ErrNotFitted = errors.New("model not fitted")
	// ErrShape is returned for ragged or mismatched inputs.
	ErrShape = errors.New("invalid input shape")
)

// Regressor is a fitted or fittable point estimator over dense rows.
type Regressor interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// DefaultSeed seeds every randomised step when Params.Seed is zero.
const DefaultSeed uint64 = 42

// Params tunes the registry constructors. Zero fields take the model
// default, so a zero Seed means DefaultSeed and seed 0 itself is never used.
type Params struct {
	Trees        int     `json:"trees,omitempty"`
	MaxDepth     int     `json:"max_depth,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Seed         uint64  `json:"seed,omitempty"`
}

// EffectiveSeed returns Seed, or DefaultSeed when it is zero.
func (p Params) EffectiveSeed() uint64 {
	if p.Seed == 0 {
		return DefaultSeed
	}
	return p.Seed
}

type constructor func(Params) Regressor

var registry = map[string]constructor{
	GradientBoosting: func(p Params) Regressor { return NewBoosting(p) },
	RandomForest:     func(p Params) Regressor { return NewForest(p) },
	LinearRegression: func(Params) Regressor { return NewLinear() },
}

// New builds an unfitted regressor by name.
func New(name string, p Params) (Regressor, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return c(p), nil
}

// Names lists the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Envelope is the on-disk form of a fitted model. FeatureColumns pins the
// input order the model was fitted on.
type Envelope struct {
	Version        int             `json:"version"`
	Model          string          `json:"model"`
	FeatureColumns []string        `json:"feature_columns"`
	TrainedAt      time.Time       `json:"trained_at"`
	State          json.RawMessage `json:"state"`
}

// Marshal wraps a fitted model and its feature columns into an envelope.
func Marshal(r Regressor, columns []string, trainedAt time.Time) ([]byte, error) {
	state, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s state: %w", r.Name(), err)
	}
	env := Envelope{
		Version:        EnvelopeVersion,
		Model:          r.Name(),
		FeatureColumns: columns,
		TrainedAt:      trainedAt.UTC(),
		State:          state,
	}
	return json.MarshalIndent(env, "", "  ")
}

// Unmarshal decodes an envelope back into a ready regressor.
func Unmarshal(data []byte) (Regressor, *Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode model envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return nil, nil, fmt.Errorf("unsupported model envelope version %d", env.Version)
	}

	r, err := New(env.Model, Params{})
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(env.State, r); err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s state: %w", env.Model, err)
	}
	return r, &env, nil
}

// checkShape validates a design matrix and returns its width.
func checkShape(X [][]float64, n int) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrShape)
	}
	if n >= 0 && len(X) != n {
		return 0, fmt.Errorf("%w: %d rows for %d targets", ErrShape, len(X), n)
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), width)
		}
	}
	return width, nil
}
