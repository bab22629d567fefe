package numeric

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ReLU returns max(0, x).
func ReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// LeakyReLU returns x for positive inputs and alpha*x otherwise.
func LeakyReLU(x, alpha float64) float64 {
	if x > 0 {
		return x
	}
	return alpha * x
}

// ReLUVec applies ReLU element-wise into a new slice.
func ReLUVec(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = ReLU(x)
	}
	return out
}

// Softmax converts logits into a probability distribution.
// The max logit is subtracted before exponentiating so large inputs do not overflow.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return []float64{}
	}
	maxLogit := floats.Max(logits)
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// ArgMax returns the index of the largest element, the first one on ties. -1 for empty input.
func ArgMax(xs []float64) int {
	if len(xs) == 0 {
		return -1
	}
	return floats.MaxIdx(xs)
}
