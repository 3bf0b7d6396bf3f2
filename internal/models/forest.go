package models

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
)

// Forest is a bagged ensemble of fully grown regression trees.
type Forest struct {
	NTrees int     `json:"n_trees"`
	Seed   uint64  `json:"seed"`
	Width  int     `json:"width"`
	Trees  []*tree `json:"trees"`
}

// NewForest returns an unfitted forest: 300 trees and DefaultSeed unless p
// overrides them.
func NewForest(p Params) *Forest {
	f := &Forest{NTrees: 300, Seed: p.EffectiveSeed()}
	if p.Trees > 0 {
		f.NTrees = p.Trees
	}
	return f
}

// Name returns the registry name.
func (f *Forest) Name() string { return RandomForest }

// Fit grows every tree on its own bootstrap sample. Tree i draws from a
// generator seeded with (Seed, i) so results do not depend on scheduling.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, len(y))
	if err != nil {
		return err
	}
	f.Width = width
	f.Trees = make([]*tree, f.NTrees)

	n := len(y)
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	for i := 0; i < f.NTrees; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewPCG(f.Seed, uint64(i)))
			idx := make([]int, n)
			for k := range idx {
				idx[k] = rng.IntN(n)
			}
			f.Trees[i] = fitTree(X, y, idx, treeConfig{}, rng)
		}(i)
	}
	wg.Wait()
	return nil
}

// Predict averages the trees.
func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	width, err := checkShape(X, -1)
	if err != nil {
		return nil, err
	}
	if width != f.Width {
		return nil, fmt.Errorf("%w: got %d columns, fitted on %d", ErrShape, width, f.Width)
	}

	out := make([]float64, len(X))
	for i, x := range X {
		var s float64
		for _, t := range f.Trees {
			s += t.predict(x)
		}
		out[i] = s / float64(len(f.Trees))
	}
	return out, nil
}
