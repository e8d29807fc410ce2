package ml

import (
	"math"
	"math/rand"
)

const (
	DefaultTrees      = 100
	DefaultSampleSize = 256
	DefaultSeed       = 42
)

// IsolationForest scores rows by how quickly random axis-aligned splits
// isolate them. The random source is seeded per fit so identical input gives
// identical output.
type IsolationForest struct {
	Trees      int
	SampleSize int
	Seed       int64
}

func NewIsolationForest(trees int, seed int64) *IsolationForest {
	if trees <= 0 {
		trees = DefaultTrees
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	return &IsolationForest{Trees: trees, SampleSize: DefaultSampleSize, Seed: seed}
}

func (f *IsolationForest) Name() string { return "iforest" }

type itree struct {
	feature int
	split   float64
	left    *itree
	right   *itree
	size    int
	leaf    bool
}

func (f *IsolationForest) FitAndLabel(x [][]float64, contamination float64) ([]bool, []float64, error) {
	if err := checkContamination(contamination); err != nil {
		return nil, nil, err
	}
	scores := make([]float64, len(x))
	if len(x) < 2 {
		return make([]bool, len(x)), scores, nil
	}

	rng := rand.New(rand.NewSource(f.Seed))
	psi := min(f.SampleSize, len(x))
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	trees := make([]*itree, f.Trees)
	for t := range trees {
		sample := rng.Perm(len(x))[:psi]
		trees[t] = buildTree(rng, x, sample, 0, maxDepth)
	}

	cn := avgPathLength(psi)
	for i, row := range x {
		var h float64
		for _, tr := range trees {
			h += tr.pathLength(row, 0)
		}
		h /= float64(len(trees))
		scores[i] = math.Pow(2, -h/cn)
	}
	return label(scores, contamination), scores, nil
}

func buildTree(rng *rand.Rand, x [][]float64, idx []int, depth, maxDepth int) *itree {
	if len(idx) <= 1 || depth >= maxDepth {
		return &itree{size: len(idx), leaf: true}
	}

	// only split on features that still vary inside this node
	var feats []int
	var los, his []float64
	for j := range x[idx[0]] {
		lo, hi := x[idx[0]][j], x[idx[0]][j]
		for _, i := range idx[1:] {
			lo = math.Min(lo, x[i][j])
			hi = math.Max(hi, x[i][j])
		}
		if hi > lo {
			feats = append(feats, j)
			los = append(los, lo)
			his = append(his, hi)
		}
	}
	if len(feats) == 0 {
		return &itree{size: len(idx), leaf: true}
	}

	k := rng.Intn(len(feats))
	feat := feats[k]
	split := los[k] + rng.Float64()*(his[k]-los[k])

	var left, right []int
	for _, i := range idx {
		if x[i][feat] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &itree{size: len(idx), leaf: true}
	}
	return &itree{
		feature: feat,
		split:   split,
		left:    buildTree(rng, x, left, depth+1, maxDepth),
		right:   buildTree(rng, x, right, depth+1, maxDepth),
		size:    len(idx),
	}
}

func (t *itree) pathLength(row []float64, depth int) float64 {
	if t.leaf {
		return float64(depth) + avgPathLength(t.size)
	}
	if row[t.feature] < t.split {
		return t.left.pathLength(row, depth+1)
	}
	return t.right.pathLength(row, depth+1)
}

// avgPathLength is c(n), the mean path length of an unsuccessful search in a
// binary search tree of n nodes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
