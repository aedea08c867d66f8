package gbdt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic returns rows where the label is 1 exactly when x0 > 0.5; x1 is noise.
func synthetic(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x0 := rng.Float64()
		X[i] = []float64{x0, rng.Float64()}
		if x0 > 0.5 {
			y[i] = 1
		}
	}
	return X, y
}

func smallParams() Params {
	p := DefaultParams()
	p.NumTrees = 40
	p.MinSamplesLeaf = 5
	p.MaxDepth = 3
	return p
}

func TestFit_SeparatesSyntheticClasses(t *testing.T) {
	X, y := synthetic(400, 1)
	m, err := Fit(X, y, smallParams())
	require.NoError(t, err)
	require.Len(t, m.Trees, 40)

	probs, err := m.PredictProba([][]float64{{0.9, 0.3}, {0.1, 0.3}})
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.8)
	assert.Less(t, probs[1], 0.2)
	assert.Greater(t, m.Gain[0], m.Gain[1])
}

func TestFit_Deterministic(t *testing.T) {
	X, y := synthetic(200, 7)
	p := smallParams()
	p.Subsample = 0.7

	a, err := Fit(X, y, p)
	require.NoError(t, err)
	b, err := Fit(X, y, p)
	require.NoError(t, err)

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestPredictProba_InUnitInterval(t *testing.T) {
	X, y := synthetic(100, 3)
	m, err := Fit(X, y, smallParams())
	require.NoError(t, err)
	probs, err := m.PredictProba(append(X, []float64{math.NaN(), math.NaN()}))
	require.NoError(t, err)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestFit_SingleClassPredictsPrior(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	y := []float64{0, 0, 0}
	m, err := Fit(X, y, smallParams())
	require.NoError(t, err)
	probs, err := m.PredictProba(X)
	require.NoError(t, err)
	for _, p := range probs {
		assert.Less(t, p, 0.01)
	}
}

func TestFit_Errors(t *testing.T) {
	p := smallParams()
	cases := []struct {
		name string
		X    [][]float64
		y    []float64
		p    Params
	}{
		{"empty", nil, nil, p},
		{"label length", [][]float64{{1}, {2}}, []float64{1}, p},
		{"ragged", [][]float64{{1, 2}, {2}}, []float64{1, 0}, p},
		{"no features", [][]float64{{}}, []float64{1}, p},
		{"label value", [][]float64{{1}, {2}}, []float64{1, 2}, p},
		{"params", [][]float64{{1}}, []float64{1}, Params{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Fit(tc.X, tc.y, tc.p)
			assert.Error(t, err)
		})
	}
}

func TestPredictProba_WidthMismatch(t *testing.T) {
	m, err := Fit([][]float64{{1, 2}, {2, 3}}, []float64{0, 1}, smallParams())
	require.NoError(t, err)
	_, err = m.PredictProba([][]float64{{1}})
	assert.Error(t, err)
}

func TestMarshalBinary_RoundTrip(t *testing.T) {
	X, y := synthetic(150, 11)
	m, err := Fit(X, y, smallParams())
	require.NoError(t, err)

	data, err := m.MarshalBinary()
	require.NoError(t, err)
	var back Model
	require.NoError(t, back.UnmarshalBinary(data))

	want, err := m.PredictProba(X)
	require.NoError(t, err)
	got, err := back.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.Params, back.Params)

	assert.Error(t, back.UnmarshalBinary([]byte("not gob")))
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
	p := DefaultParams()
	p.Subsample = 0
	assert.Error(t, p.Validate())
	p = DefaultParams()
	p.LearningRate = 2
	assert.Error(t, p.Validate())
}

func TestBuilderSums(t *testing.T) {
	b := &builder{grad: []float64{0.5, -1, 2, 4}, hess: []float64{0.25, 0.25, 0.5, 1}}
	rows := []int{0, 2, 3}
	g, h := b.sums(rows)
	assert.Equal(t, 6.5, g)
	assert.Equal(t, 1.75, h)

	allocs := testing.AllocsPerRun(20, func() { b.sums(rows) })
	assert.Zero(t, allocs)
}
