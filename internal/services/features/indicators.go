package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	BollingerWidth   = 2.0
	StatsWindow      = 20
)

// RSI computes the relative strength index with simple rolling averages of gains and losses.
// Positions without a full window, or with no movement at all, read the neutral 50.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 50
	}
	if period < 1 {
		return out
	}
	for i := period; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - closes[j-1]
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		switch {
		case gain == 0 && loss == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		default:
			rs := gain / loss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// EMA is the exponential moving average with alpha = 2/(period+1), seeded at the first value.
func EMA(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2 / float64(period+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the fast-minus-slow EMA line and its signal EMA.
func MACD(closes []float64, fast, slow, signal int) (line, signalLine []float64) {
	line = make([]float64, len(closes))
	floats.SubTo(line, EMA(closes, fast), EMA(closes, slow))
	return line, EMA(line, signal)
}

// BollingerPosition locates each close inside its band: 0 at the lower band, 1 at the upper.
// Positions without a full window or with a flat band read 0.5.
func BollingerPosition(closes []float64, period int, width float64) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 0.5
		if period < 2 || i+1 < period {
			continue
		}
		mean, sd := stat.MeanStdDev(closes[i+1-period:i+1], nil)
		band := 2 * width * sd
		if band == 0 || math.IsNaN(band) {
			continue
		}
		lower := mean - width*sd
		out[i] = (closes[i] - lower) / band
	}
	return out
}
