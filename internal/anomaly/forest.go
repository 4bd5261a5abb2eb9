package anomaly

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
)

const eulerGamma = 0.5772156649

// Params configures forest training.
type Params struct {
	NumTrees      int     `json:"num_trees"`
	MaxSamples    int     `json:"max_samples"`
	Contamination float64 `json:"contamination"`
	Seed          uint64  `json:"seed"`
}

// DefaultParams mirrors the classic isolation forest settings.
func DefaultParams() Params {
	return Params{NumTrees: 100, MaxSamples: 256, Contamination: 0.1, Seed: 42}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.NumTrees <= 0 {
		p.NumTrees = d.NumTrees
	}
	if p.MaxSamples <= 0 {
		p.MaxSamples = d.MaxSamples
	}
	if p.Contamination == 0 {
		p.Contamination = d.Contamination
	}
	return p
}

// Validate reports out-of-range parameters.
func (p Params) Validate() error {
	if p.Contamination <= 0 || p.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", p.Contamination)
	}
	return nil
}

// Node is one entry of a flattened isolation tree. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Size      int     `json:"n"`
}

// Tree is an isolation tree stored as a node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a trained isolation forest. It serializes to JSON so it can be
// persisted and reloaded into the same shape.
type Forest struct {
	ID            string    `json:"id"`
	Features      []string  `json:"features"`
	SampleSize    int       `json:"sample_size"`
	Contamination float64   `json:"contamination"`
	Offset        float64   `json:"offset"`
	TrainedAt     time.Time `json:"trained_at"`
	TrainedOn     int       `json:"trained_on"`
	Trees         []Tree    `json:"trees"`
}

// NumFeatures is the width of the vectors the forest was fitted on.
func (f *Forest) NumFeatures() int { return len(f.Features) }

// Validate checks structural integrity of a reloaded forest.
func (f *Forest) Validate() error {
	if f == nil {
		return fmt.Errorf("forest is nil")
	}
	if len(f.Features) == 0 {
		return fmt.Errorf("forest has no features")
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left == -1 {
				continue
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has out-of-range children", ti, ni)
			}
			if n.Feature < 0 || n.Feature >= len(f.Features) {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, ni, n.Feature)
			}
		}
	}
	return nil
}

// Fit trains a forest on X, whose rows must all have len(features) columns.
func Fit(X [][]float64, features []string, p Params) (*Forest, error) {
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no features to fit")
	}
	if len(X) < 2 {
		return nil, &InsufficientDataError{Have: len(X), Need: 2}
	}
	for _, row := range X {
		if len(row) != len(features) {
			return nil, &FeatureShapeError{Want: len(features), Got: len(row)}
		}
	}
	psi := p.MaxSamples
	if psi > len(X) {
		psi = len(X)
	}
	limit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	f := &Forest{
		ID:            uuid.NewString(),
		Features:      append([]string(nil), features...),
		SampleSize:    psi,
		Contamination: p.Contamination,
		TrainedAt:     time.Now().UTC(),
		TrainedOn:     len(X),
		Trees:         make([]Tree, 0, p.NumTrees),
	}
	for i := 0; i < p.NumTrees; i++ {
		idx := rng.Perm(len(X))[:psi]
		b := &builder{x: X, width: len(features), limit: limit, rng: rng}
		b.grow(idx, 0)
		f.Trees = append(f.Trees, Tree{Nodes: b.nodes})
	}

	scores := make([]float64, len(X))
	for i, row := range X {
		scores[i] = f.rawScore(row)
	}
	f.Offset = percentile(scores, p.Contamination)
	return f, nil
}

type builder struct {
	x     [][]float64
	width int
	limit int
	rng   *rand.Rand
	nodes []Node
}

func (b *builder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: len(idx)})
	if depth >= b.limit || len(idx) <= 1 {
		return at
	}

	// Only features that vary within this node can split it.
	var candidates []int
	lo := make([]float64, b.width)
	hi := make([]float64, b.width)
	for j := 0; j < b.width; j++ {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := b.x[i][j]
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return at
	}
	feat := candidates[b.rng.IntN(len(candidates))]
	thr := lo[feat] + b.rng.Float64()*(hi[feat]-lo[feat])

	var left, right []int
	for _, i := range idx {
		if b.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at].Feature = feat
	b.nodes[at].Threshold = thr
	b.nodes[at].Left = l
	b.nodes[at].Right = r
	return at
}

// Score returns the decision value of x: negative values are outliers.
func (f *Forest) Score(x []float64) (float64, error) {
	if len(x) != f.NumFeatures() {
		return 0, &FeatureShapeError{Want: f.NumFeatures(), Got: len(x)}
	}
	return f.rawScore(x) - f.Offset, nil
}

// ScoreAll scores every row, failing fast on the first width mismatch.
func (f *Forest) ScoreAll(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		s, err := f.Score(row)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// rawScore is -2^(-E[h(x)]/c(psi)); lower is more anomalous.
func (f *Forest) rawScore(x []float64) float64 {
	var total float64
	for _, t := range f.Trees {
		total += pathLength(t, x)
	}
	mean := total / float64(len(f.Trees))
	norm := averagePathLength(f.SampleSize)
	if norm == 0 {
		return -1
	}
	return -math.Pow(2, -mean/norm)
}

func pathLength(t Tree, x []float64) float64 {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean unsuccessful search length in a BST.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, q float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (pos-float64(lo))*(s[hi]-s[lo])
}
