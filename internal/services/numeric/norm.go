package numeric

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon keeps BatchNorm finite on constant inputs.
const DefaultEpsilon = 1e-5

// Float64Source is satisfied by *rand.Rand.
type Float64Source interface {
	Float64() float64
}

// BatchNorm rescales input to zero mean and unit variance using the statistics of input itself.
// There are no running averages.
func BatchNorm(input []float64, epsilon float64) []float64 {
	out := make([]float64, len(input))
	if len(input) == 0 {
		return out
	}
	mean, variance := stat.PopMeanVariance(input, nil)
	denom := math.Sqrt(variance + epsilon)
	for i, x := range input {
		out[i] = (x - mean) / denom
	}
	return out
}

// Dropout zeroes each element with probability rate and scales survivors by 1/(1-rate).
// It is the identity outside training or when rate is 0.
func Dropout(input []float64, rate float64, training bool, rng Float64Source) []float64 {
	out := make([]float64, len(input))
	if !training || rate <= 0 || rng == nil {
		copy(out, input)
		return out
	}
	if rate >= 1 {
		return out
	}
	keep := 1 / (1 - rate)
	for i, x := range input {
		if rng.Float64() < rate {
			continue
		}
		out[i] = x * keep
	}
	return out
}
