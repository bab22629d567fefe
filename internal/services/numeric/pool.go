package numeric

import (
	"gonum.org/v1/gonum/floats"
)

// PoolLength returns floor((n-poolSize)/stride)+1, or 0 when the window does not fit.
func PoolLength(n, poolSize, stride int) int {
	if poolSize < 1 || stride < 1 || poolSize > n {
		return 0
	}
	return (n-poolSize)/stride + 1
}

// MaxPool1D takes the maximum of each window. Trailing partial windows are dropped.
func MaxPool1D(input []float64, poolSize, stride int) []float64 {
	n := PoolLength(len(input), poolSize, stride)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * stride
		out[i] = floats.Max(input[start : start+poolSize])
	}
	return out
}

// AvgPool1D takes the mean of each window. Trailing partial windows are dropped.
func AvgPool1D(input []float64, poolSize, stride int) []float64 {
	n := PoolLength(len(input), poolSize, stride)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * stride
		out[i] = floats.Sum(input[start:start+poolSize]) / float64(poolSize)
	}
	return out
}

// MaxPool2D pools square windows over a grid.
func MaxPool2D(grid [][]float64, poolSize, stride int) [][]float64 {
	if len(grid) == 0 {
		return [][]float64{}
	}
	oh := PoolLength(len(grid), poolSize, stride)
	ow := PoolLength(len(grid[0]), poolSize, stride)
	out := make([][]float64, oh)
	for i := 0; i < oh; i++ {
		out[i] = make([]float64, ow)
		for j := 0; j < ow; j++ {
			r0, c0 := i*stride, j*stride
			m := grid[r0][c0]
			for r := r0; r < r0+poolSize; r++ {
				if v := floats.Max(grid[r][c0 : c0+poolSize]); v > m {
					m = v
				}
			}
			out[i][j] = m
		}
	}
	return out
}
