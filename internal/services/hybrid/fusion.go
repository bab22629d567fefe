package hybrid

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"FinHybrid/internal/services/numeric"
)

// FusionWeights projects the combined spatial and temporal vector onto class logits.
type FusionWeights struct {
	Weights [][]float64 `json:"weights"` // classes x (spatialDim+temporalDim)
	Bias    []float64   `json:"bias"`
}

// Clone returns a deep copy.
func (w FusionWeights) Clone() FusionWeights {
	out := FusionWeights{
		Weights: make([][]float64, len(w.Weights)),
		Bias:    append([]float64(nil), w.Bias...),
	}
	for i, row := range w.Weights {
		out.Weights[i] = append([]float64(nil), row...)
	}
	return out
}

type FusionLayer struct {
	w           FusionWeights
	spatialDim  int
	temporalDim int
}

func newFusionLayer(classes, spatialDim, temporalDim int, rng *rand.Rand) *FusionLayer {
	in := spatialDim + temporalDim
	scale := math.Sqrt(1 / float64(max(in, 1)))
	w := FusionWeights{
		Weights: make([][]float64, classes),
		Bias:    make([]float64, classes),
	}
	for i := range w.Weights {
		row := make([]float64, in)
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * scale
		}
		w.Weights[i] = row
	}
	return &FusionLayer{w: w, spatialDim: spatialDim, temporalDim: temporalDim}
}

// Combine concatenates spatial and temporal, each fitted to the layer's dimensions.
func (f *FusionLayer) Combine(spatial, temporal []float64) []float64 {
	return append(fit(spatial, f.spatialDim), fit(temporal, f.temporalDim)...)
}

// SpatialOnly combines spatial with an all-zero temporal half.
func (f *FusionLayer) SpatialOnly(spatial []float64) []float64 {
	return f.Combine(spatial, nil)
}

func (f *FusionLayer) preActivation(combined []float64) []float64 {
	z := make([]float64, len(f.w.Weights))
	for i, row := range f.w.Weights {
		z[i] = f.w.Bias[i] + floats.Dot(row, combined)
	}
	return z
}

// Forward computes relu(bias + W*combined). combined must have spatialDim+temporalDim entries.
func (f *FusionLayer) Forward(combined []float64) []float64 {
	return numeric.ReLUVec(f.preActivation(combined))
}

// Step applies one softmax cross-entropy gradient step towards class target with L1 and L2 penalties.
func (f *FusionLayer) Step(combined []float64, target int, lr, l1, l2 float64) {
	z := f.preActivation(combined)
	probs := numeric.Softmax(numeric.ReLUVec(z))
	for i, row := range f.w.Weights {
		if z[i] <= 0 {
			continue
		}
		delta := probs[i]
		if i == target {
			delta -= 1
		}
		for j := range row {
			grad := delta*combined[j] + l2*row[j]
			if l1 > 0 && row[j] != 0 {
				grad += l1 * math.Copysign(1, row[j])
			}
			row[j] -= lr * grad
		}
		f.w.Bias[i] -= lr * delta
	}
}

func (f *FusionLayer) Weights() FusionWeights { return f.w.Clone() }

// fit truncates or zero-pads v to exactly n entries.
func fit(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}
