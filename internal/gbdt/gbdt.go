// Package gbdt implements a gradient-boosted decision tree binary classifier.
//
// Trees are fitted with Newton steps on the logistic loss using exact greedy
// split search. Missing values (NaN) always follow the right branch.
package gbdt

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const formatVersion = 1

// Params configures training.
type Params struct {
	NumTrees       int     `json:"num_trees" yaml:"num_trees"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	// MinChildWeight is the minimum hessian sum on each side of a split.
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight"`
	L2             float64 `json:"l2" yaml:"l2"`
	// Subsample is the fraction of rows drawn for each tree (0,1].
	Subsample float64 `json:"subsample" yaml:"subsample"`
	Seed      int64   `json:"seed" yaml:"seed"`
}

// DefaultParams returns the standard training parameters.
func DefaultParams() Params {
	return Params{
		NumTrees:       100,
		LearningRate:   0.1,
		MaxDepth:       6,
		MinSamplesLeaf: 20,
		MinChildWeight: 1e-3,
		L2:             1.0,
		Subsample:      1.0,
		Seed:           42,
	}
}

// Validate reports the first invalid parameter.
func (p Params) Validate() error {
	switch {
	case p.NumTrees < 1:
		return fmt.Errorf("num_trees must be >= 1, got %d", p.NumTrees)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0,1], got %g", p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("max_depth must be >= 1, got %d", p.MaxDepth)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("min_samples_leaf must be >= 1, got %d", p.MinSamplesLeaf)
	case p.MinChildWeight < 0:
		return fmt.Errorf("min_child_weight must be >= 0, got %g", p.MinChildWeight)
	case p.L2 < 0:
		return fmt.Errorf("l2 must be >= 0, got %g", p.L2)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0,1], got %g", p.Subsample)
	}
	return nil
}

// Node is one tree node stored in a flat slice. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a regression tree over raw scores.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		// NaN compares false and goes right.
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Model is a fitted classifier.
type Model struct {
	Params      Params
	NumFeatures int
	BaseScore   float64
	Trees       []Tree
	// Gain is the total split gain accumulated per feature.
	Gain []float64
}

// Fit trains a model on X (n rows of equal width) and labels y in {0,1}.
func Fit(X [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("gbdt: %w", err)
	}
	if len(X) == 0 {
		return nil, errors.New("gbdt: empty X")
	}
	if len(y) != len(X) {
		return nil, fmt.Errorf("gbdt: X has %d rows but y has %d labels", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return nil, errors.New("gbdt: X has no features")
	}
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("gbdt: row %d has %d features, want %d", i, len(row), width)
		}
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("gbdt: label %g at row %d is not 0 or 1", v, i)
		}
	}

	n := len(X)
	m := &Model{Params: p, NumFeatures: width, Gain: make([]float64, width)}
	prior := math.Min(math.Max(floats.Sum(y)/float64(n), 1e-6), 1-1e-6)
	m.BaseScore = math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = m.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rng := rand.New(rand.NewSource(p.Seed))
	b := &builder{X: X, grad: grad, hess: hess, p: p, gain: m.Gain}

	for k := 0; k < p.NumTrees; k++ {
		for i := range raw {
			pr := sigmoid(raw[i])
			grad[i] = pr - y[i]
			hess[i] = math.Max(pr*(1-pr), 1e-16)
		}
		rows := sampleRows(n, p.Subsample, rng)
		t := b.build(rows)
		for i, x := range X {
			raw[i] += p.LearningRate * t.predict(x)
		}
		m.Trees = append(m.Trees, t)
	}
	return m, nil
}

// PredictProba returns the default probability for each row.
func (m *Model) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != m.NumFeatures {
			return nil, fmt.Errorf("gbdt: row %d has %d features, model expects %d", i, len(x), m.NumFeatures)
		}
		out[i] = sigmoid(m.raw(x))
	}
	return out, nil
}

func (m *Model) raw(x []float64) float64 {
	s := m.BaseScore
	for i := range m.Trees {
		s += m.Params.LearningRate * m.Trees[i].predict(x)
	}
	return s
}

// modelData drops Model's methods so gob does not recurse into MarshalBinary.
type modelData Model

type wireModel struct {
	Version int
	Model   modelData
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireModel{Version: formatVersion, Model: modelData(*m)}); err != nil {
		return nil, fmt.Errorf("gbdt: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Model) UnmarshalBinary(data []byte) error {
	var w wireModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return fmt.Errorf("gbdt: decode model: %w", err)
	}
	if w.Version != formatVersion {
		return fmt.Errorf("gbdt: unsupported model format %d", w.Version)
	}
	for ti, t := range w.Model.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("gbdt: tree %d is empty", ti)
		}
		for _, nd := range t.Nodes {
			if nd.Feature >= w.Model.NumFeatures || (nd.Feature >= 0 && (nd.Left >= len(t.Nodes) || nd.Right >= len(t.Nodes))) {
				return fmt.Errorf("gbdt: tree %d is corrupt", ti)
			}
		}
	}
	*m = Model(w.Model)
	return nil
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// sampleRows draws each row with probability frac. The draw sequence depends
// only on the seeded source, so fits are reproducible.
func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	rows := make([]int, 0, n)
	if frac >= 1 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < frac {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

type builder struct {
	X          [][]float64
	grad, hess []float64
	p          Params
	gain       []float64
	nodes      []Node
}

func (b *builder) build(rows []int) Tree {
	b.nodes = nil
	b.grow(rows, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends the subtree for rows and returns its root index.
func (b *builder) grow(rows []int, depth int) int {
	g, h := b.sums(rows)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: -g / (h + b.p.L2)})

	if depth >= b.p.MaxDepth || len(rows) < 2*b.p.MinSamplesLeaf {
		return idx
	}
	s, ok := b.bestSplit(rows, g, h)
	if !ok {
		return idx
	}
	b.gain[s.feature] += s.gain

	var left, right []int
	for _, r := range rows {
		if b.X[r][s.feature] <= s.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{Feature: s.feature, Threshold: s.threshold, Left: l, Right: r}
	return idx
}

// sums returns the gradient and hessian totals over rows.
func (b *builder) sums(rows []int) (g, h float64) {
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}
	return g, h
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit scans every feature for the split maximising the loss reduction.
// Ties keep the earliest feature and the lowest threshold.
func (b *builder) bestSplit(rows []int, g, h float64) (split, bool) {
	lambda := b.p.L2
	parent := g * g / (h + lambda)
	best := split{gain: 1e-12}
	found := false

	sorted := make([]int, 0, len(rows))
	for f := 0; f < len(b.X[0]); f++ {
		sorted = sorted[:0]
		for _, r := range rows {
			if !math.IsNaN(b.X[r][f]) {
				sorted = append(sorted, r)
			}
		}
		sort.Slice(sorted, func(i, j int) bool {
			vi, vj := b.X[sorted[i]][f], b.X[sorted[j]][f]
			if vi != vj {
				return vi < vj
			}
			return sorted[i] < sorted[j]
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			gl += b.grad[r]
			hl += b.hess[r]
			v, next := b.X[r][f], b.X[sorted[i+1]][f]
			if v == next {
				continue
			}
			nl, nr := i+1, len(rows)-(i+1)
			if nl < b.p.MinSamplesLeaf || nr < b.p.MinSamplesLeaf {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.p.MinChildWeight || hr < b.p.MinChildWeight {
				continue
			}
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > best.gain {
				thr := v + (next-v)/2
				if thr >= next {
					thr = v
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
