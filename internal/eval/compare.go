package eval

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Defaults for Compare.
const (
	DefaultPermutations = 1000
	DefaultResamples    = 1000
	significanceLevel   = 0.05
)

// Comparison is a paired test of two predictors on the same test rows.
// Differences are |error of A| - |error of B|, so a negative MAEDiff
// favours A.
type Comparison struct {
	A           string     `json:"a"`
	B           string     `json:"b"`
	Pairs       int        `json:"pairs"`
	MAEDiff     float64    `json:"mae_diff"`
	CI          [2]float64 `json:"ci_95"`
	PValue      float64    `json:"p_value"`
	EffectSize  float64    `json:"effect_size"`
	Significant bool       `json:"significant"`
}

// Compare runs a sign-flip permutation test and a bootstrap interval on
// the paired absolute errors of predA and predB. Pairs with a NaN on
// either side are dropped. With no usable pair the comparison has
// PValue 1.
func Compare(a, b string, yTrue, predA, predB []float64, permutations, resamples int, seed uint64) Comparison {
	c := Comparison{A: a, B: b, PValue: 1}
	if !sameLength(yTrue, predA) || !sameLength(yTrue, predB) {
		return c
	}

	diffs := make([]float64, 0, len(yTrue))
	for i, y := range yTrue {
		d := math.Abs(y-predA[i]) - math.Abs(y-predB[i])
		if !math.IsNaN(d) {
			diffs = append(diffs, d)
		}
	}
	c.Pairs = len(diffs)
	if c.Pairs == 0 {
		return c
	}
	if permutations <= 0 {
		permutations = DefaultPermutations
	}
	if resamples <= 0 {
		resamples = DefaultResamples
	}

	observed := stat.Mean(diffs, nil)
	c.MAEDiff = observed
	if c.Pairs > 1 {
		if sd := stat.StdDev(diffs, nil); sd > 0 {
			c.EffectSize = observed / sd
		}
	}

	rng := rand.New(rand.NewPCG(seed, uint64(c.Pairs)))

	// Under the null the sign of each paired difference is exchangeable
	count := 0
	for p := 0; p < permutations; p++ {
		var sum float64
		for _, d := range diffs {
			if rng.IntN(2) == 0 {
				sum += d
			} else {
				sum -= d
			}
		}
		if math.Abs(sum/float64(c.Pairs)) >= math.Abs(observed) {
			count++
		}
	}
	c.PValue = float64(count) / float64(permutations)
	c.Significant = c.PValue < significanceLevel

	means := make([]float64, resamples)
	for r := range means {
		var sum float64
		for range diffs {
			sum += diffs[rng.IntN(c.Pairs)]
		}
		means[r] = sum / float64(c.Pairs)
	}
	sort.Float64s(means)
	c.CI = [2]float64{
		stat.Quantile(0.025, stat.Empirical, means, nil),
		stat.Quantile(0.975, stat.Empirical, means, nil),
	}
	return c
}
