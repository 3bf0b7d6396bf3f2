package models

import (
	"fmt"
)

// Boosting is gradient boosted regression trees on squared loss.
type Boosting struct {
	Stages       int     `json:"stages"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`
	Width        int     `json:"width"`
	Init         float64 `json:"init"`
	Trees        []*tree `json:"trees"`
}

// NewBoosting returns an unfitted booster: 100 stages, rate 0.1, depth 3
// unless p overrides them.
func NewBoosting(p Params) *Boosting {
	b := &Boosting{Stages: 100, LearningRate: 0.1, MaxDepth: 3}
	if p.Trees > 0 {
		b.Stages = p.Trees
	}
	if p.LearningRate > 0 {
		b.LearningRate = p.LearningRate
	}
	if p.MaxDepth > 0 {
		b.MaxDepth = p.MaxDepth
	}
	return b
}

// Name returns the registry name.
func (b *Boosting) Name() string { return GradientBoosting }

// Fit grows Stages trees, each on the residuals of the running prediction.
func (b *Boosting) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, len(y))
	if err != nil {
		return err
	}

	idx := make([]int, len(y))
	var sum float64
	for i, v := range y {
		idx[i] = i
		sum += v
	}
	b.Init = sum / float64(len(y))
	b.Width = width
	b.Trees = b.Trees[:0]

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = b.Init
	}
	residual := make([]float64, len(y))
	cfg := treeConfig{maxDepth: b.MaxDepth}

	for s := 0; s < b.Stages; s++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		t := fitTree(X, residual, idx, cfg, nil)
		b.Trees = append(b.Trees, t)
		for i, x := range X {
			pred[i] += b.LearningRate * t.predict(x)
		}
	}
	return nil
}

// Predict scores every row.
func (b *Boosting) Predict(X [][]float64) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, ErrNotFitted
	}
	width, err := checkShape(X, -1)
	if err != nil {
		return nil, err
	}
	if width != b.Width {
		return nil, fmt.Errorf("%w: got %d columns, fitted on %d", ErrShape, width, b.Width)
	}

	out := make([]float64, len(X))
	for i, x := range X {
		v := b.Init
		for _, t := range b.Trees {
			v += b.LearningRate * t.predict(x)
		}
		out[i] = v
	}
	return out, nil
}
