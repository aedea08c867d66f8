package pipeline

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// rocAUC returns the area under the ROC curve of probs against 0/1 labels,
// or NaN when only one class is present.
func rocAUC(probs, labels []float64) float64 {
	y := append([]float64(nil), probs...)
	classes := make([]bool, len(labels))
	var pos int
	for i, l := range labels {
		classes[i] = l == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return math.NaN()
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func positiveRate(labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	return stat.Mean(labels, nil)
}
