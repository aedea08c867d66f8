package utils

import "testing"

func TestQuantile(t *testing.T) {
	cases := []struct {
		vals []float64
		q    float64
		want float64
	}{
		{nil, 0.5, 0},
		{[]float64{7}, 0.5, 7},
		{[]float64{1, 2, 3, 4, 5}, 0.5, 3},
		{[]float64{1, 2, 3, 4}, 0.5, 2.5},
		{[]float64{1, 2, 3, 4}, 0, 1},
		{[]float64{1, 2, 3, 4}, 1, 4},
		{[]float64{0, 10}, 0.25, 2.5},
	}
	for _, c := range cases {
		if got := Quantile(c.vals, c.q); got != c.want {
			t.Errorf("Quantile(%v, %g) = %g, want %g", c.vals, c.q, got, c.want)
		}
	}
}
