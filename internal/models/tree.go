package models

import (
	"math/rand/v2"
	"sort"
)

// node is a flattened CART node. Leaves have Left == -1.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// tree is a regression tree minimizing squared error.
type tree struct {
	Nodes []node `json:"nodes"`
}

type treeConfig struct {
	maxDepth       int // 0 means unbounded
	minSamplesLeaf int
	minSplit       int
	maxFeatures    int // 0 means every feature
}

type treeBuilder struct {
	cfg   treeConfig
	X     [][]float64
	y     []float64
	width int
	rng   *rand.Rand
	out   *tree
}

// fitTree grows a tree on the rows in idx. rng is only used when
// maxFeatures restricts the candidate features.
func fitTree(X [][]float64, y []float64, idx []int, cfg treeConfig, rng *rand.Rand) *tree {
	if cfg.minSamplesLeaf < 1 {
		cfg.minSamplesLeaf = 1
	}
	if cfg.minSplit < 2 {
		cfg.minSplit = 2
	}
	b := &treeBuilder{cfg: cfg, X: X, y: y, width: len(X[0]), rng: rng, out: &tree{}}
	b.grow(idx, 0)
	return b.out
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.out.Nodes)
	b.out.Nodes = append(b.out.Nodes, node{Left: -1, Right: -1, Value: b.mean(idx)})

	if len(idx) < b.cfg.minSplit || (b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.out.Nodes[id].Feature = feature
	b.out.Nodes[id].Threshold = threshold
	b.out.Nodes[id].Left = l
	b.out.Nodes[id].Right = r
	return id
}

// bestSplit scans every candidate feature for the threshold with the largest
// squared error reduction. Features are visited in a fixed order so equal
// gains resolve to the lowest feature index.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	parent := sumSq - sum*sum/float64(n)
	if parent <= 1e-12 {
		return 0, 0, false
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)

	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var ls, lsq float64
		for k := 0; k < n-1; k++ {
			v := b.y[sorted[k]]
			ls += v
			lsq += v * v

			cur, next := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.cfg.minSamplesLeaf || nr < b.cfg.minSamplesLeaf {
				continue
			}
			rs, rsq := sum-ls, sumSq-lsq
			sse := (lsq - ls*ls/float64(nl)) + (rsq - rs*rs/float64(nr))
			if gain := parent - sse; gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *treeBuilder) candidates() []int {
	all := make([]int, b.width)
	for i := range all {
		all[i] = i
	}
	if b.cfg.maxFeatures <= 0 || b.cfg.maxFeatures >= b.width || b.rng == nil {
		return all
	}
	b.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:b.cfg.maxFeatures]
	sort.Ints(picked)
	return picked
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

func (t *tree) predict(x []float64) float64 {
	id := 0
	for {
		n := t.Nodes[id]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}
