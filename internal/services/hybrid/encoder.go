package hybrid

import (
	"math"

	"FinHybrid/internal/domain/models"
)

// groupWidth is the number of encoded attributes per record in each channel.
const groupWidth = 4

// channelLength is the encoded length of one channel for a window of seqLen records.
func channelLength(seqLen int) int { return seqLen * groupWidth }

// encodeChannels builds the technical, statistical and market channels from the most recent
// seqLen records. Shorter inputs are zero-padded at the front. Channels beyond the three
// attribute groups are zero; groups beyond channels are dropped.
func encodeChannels(features []models.FeatureRecord, seqLen, channels int) [][]float64 {
	if len(features) > seqLen {
		features = features[len(features)-seqLen:]
	}
	offset := (seqLen - len(features)) * groupWidth

	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, channelLength(seqLen))
	}
	for i, r := range features {
		groups := [][]float64{r.Technical.Values(), r.Statistical.Values(), r.Market.Values()}
		for c := 0; c < channels && c < len(groups); c++ {
			base := offset + i*groupWidth
			for j, v := range groups[c] {
				out[c][base+j] = compress(v)
			}
		}
	}
	return out
}

// finite returns x, or 0 when x is NaN or infinite.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func finiteAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = finite(x)
	}
	return out
}

// compress maps x to sign(x)*log(1+|x|). Non-finite values become 0.
func compress(x float64) float64 {
	x = finite(x)
	return math.Copysign(math.Log1p(math.Abs(x)), x)
}

// temporalFeatureCount is the number of scalar diagnostics taken from the temporal output.
const temporalFeatureCount = 8

// temporalVector flattens the adapter output into the temporal half of the fusion input:
// class probabilities, confidence, trend, volatility, momentum, total uncertainty, then the
// hidden state fitted to hiddenSize.
func temporalVector(out models.TemporalOutput, hiddenSize int) []float64 {
	v := make([]float64, 0, temporalFeatureCount+hiddenSize)
	v = append(v,
		out.Probabilities.Sell,
		out.Probabilities.Hold,
		out.Probabilities.Buy,
		out.Confidence,
		out.TrendStrength,
		out.VolatilityForecast,
		out.MomentumScore,
		out.Uncertainty.Total,
	)
	v = append(v, fit(out.HiddenState, hiddenSize)...)
	return finiteAll(v)
}

func flatten(maps [][]float64) []float64 {
	n := 0
	for _, m := range maps {
		n += len(m)
	}
	out := make([]float64, 0, n)
	for _, m := range maps {
		out = append(out, m...)
	}
	return out
}
