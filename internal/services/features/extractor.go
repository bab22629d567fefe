// Package features turns raw candles and market snapshots into the feature records consumed by
// the hybrid engine.
package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"FinHybrid/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// WindowStats summarises the distribution of a return window.
type WindowStats struct {
	Volatility  float64 // sample std dev, not annualized
	Skewness    float64
	Kurtosis    float64 // excess kurtosis
	SharpeRatio float64 // mean / std dev per bar
}

// ComputeWindowStats returns the statistics of the last window returns. Windows with fewer than
// two points, or no dispersion, yield zero for the dispersion-based measures.
func ComputeWindowStats(returns []float64, window int) WindowStats {
	if window > len(returns) {
		window = len(returns)
	}
	if window < 2 {
		return WindowStats{}
	}
	w := returns[len(returns)-window:]
	mean, sd := stat.MeanStdDev(w, nil)
	if sd == 0 || math.IsNaN(sd) {
		return WindowStats{}
	}
	ws := WindowStats{
		Volatility:  sd,
		SharpeRatio: mean / sd,
	}
	if window >= 3 {
		ws.Skewness = finiteOrZero(stat.Skew(w, nil))
	}
	if window >= 4 {
		ws.Kurtosis = finiteOrZero(stat.ExKurtosis(w, nil))
	}
	return ws
}

func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
