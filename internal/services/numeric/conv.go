// Package numeric holds the neural-network building blocks used by the hybrid engine:
// convolution, pooling, normalization, activations, dropout and softmax.
package numeric

import (
	"gonum.org/v1/gonum/floats"
)

// OutputLength returns floor((n+2*padding-kernel)/stride)+1, or 0 when no full window fits.
func OutputLength(n, kernel, stride, padding int) int {
	if stride < 1 || kernel < 1 {
		return 0
	}
	padded := n + 2*padding
	if padded < kernel {
		return 0
	}
	return (padded-kernel)/stride + 1
}

// Pad returns a copy of input with padding zeros on each side.
func Pad(input []float64, padding int) []float64 {
	if padding <= 0 {
		out := make([]float64, len(input))
		copy(out, input)
		return out
	}
	out := make([]float64, len(input)+2*padding)
	copy(out[padding:], input)
	return out
}

// Conv1D slides kernel over the zero-padded input and returns the dot product at every stride-th offset.
func Conv1D(input, kernel []float64, stride, padding int) []float64 {
	n := OutputLength(len(input), len(kernel), stride, padding)
	if n == 0 {
		return []float64{}
	}
	padded := Pad(input, padding)
	out := make([]float64, n)
	k := len(kernel)
	for i := 0; i < n; i++ {
		start := i * stride
		out[i] = floats.Dot(kernel, padded[start:start+k])
	}
	return out
}

// Conv2D is the grid analogue of Conv1D. Rows of the input must share one length.
func Conv2D(input, kernel [][]float64, stride, padding int) [][]float64 {
	if len(input) == 0 || len(kernel) == 0 || len(kernel[0]) == 0 {
		return [][]float64{}
	}
	kh, kw := len(kernel), len(kernel[0])
	oh := OutputLength(len(input), kh, stride, padding)
	ow := OutputLength(len(input[0]), kw, stride, padding)
	if oh == 0 || ow == 0 {
		return [][]float64{}
	}

	width := len(input[0]) + 2*padding
	padded := make([][]float64, len(input)+2*padding)
	for r := range padded {
		padded[r] = make([]float64, width)
	}
	for r, row := range input {
		copy(padded[r+padding][padding:], row)
	}

	out := make([][]float64, oh)
	for i := 0; i < oh; i++ {
		out[i] = make([]float64, ow)
		for j := 0; j < ow; j++ {
			r0, c0 := i*stride, j*stride
			sum := 0.0
			for kr := 0; kr < kh; kr++ {
				sum += floats.Dot(kernel[kr], padded[r0+kr][c0:c0+kw])
			}
			out[i][j] = sum
		}
	}
	return out
}
