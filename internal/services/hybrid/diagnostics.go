package hybrid

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"FinHybrid/internal/domain/models"
)

// priceTargetFactor scales confidence*volatility into the price move.
const priceTargetFactor = 0.15

// priceTarget moves the last record's reference price up for buy and down for sell.
func priceTarget(last models.FeatureRecord, signal models.Signal, confidence float64) float64 {
	ref := finite(last.ReferencePrice())
	move := confidence * finite(last.Statistical.Volatility) * priceTargetFactor
	switch signal {
	case models.SignalBuy:
		return finite(ref * (1 + move))
	case models.SignalSell:
		return finite(ref * (1 - move))
	default:
		return ref
	}
}

// spatialUncertainty is the mean over channels of each channel's population standard deviation.
func spatialUncertainty(maps [][]float64) float64 {
	sum, n := 0.0, 0
	for _, ch := range maps {
		if len(ch) == 0 {
			continue
		}
		_, variance := stat.PopMeanVariance(ch, nil)
		sum += math.Sqrt(variance)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// combineUncertainty keeps the min/max split: epistemic is the smaller source, aleatoric the larger.
func combineUncertainty(spatial, temporal float64) models.Uncertainty {
	return models.Uncertainty{
		Epistemic: math.Min(spatial, temporal),
		Aleatoric: math.Max(spatial, temporal),
		Total:     math.Sqrt(spatial*spatial + temporal*temporal),
		Spatial:   spatial,
		Temporal:  temporal,
	}
}

// featureImportance is |x_i| / max|x|, all zeros when the vector is zero.
func featureImportance(fused []float64) []float64 {
	out := make([]float64, len(fused))
	maxAbs := 0.0
	for _, v := range fused {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	if maxAbs == 0 {
		return out
	}
	for i, v := range fused {
		out[i] = math.Abs(v) / maxAbs
	}
	return out
}

// correlation is the Pearson coefficient of a and b truncated to their common length.
// It is 0 when fewer than two points overlap or either side has no variance.
func correlation(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n < 2 {
		return 0
	}
	return finite(stat.Correlation(a[:n], b[:n], nil))
}

// dataQuality starts at 1 and loses 0.1 per implausible record, floored at 0.
func dataQuality(features []models.FeatureRecord) float64 {
	bad := 0
	for _, r := range features {
		if !r.Plausible() {
			bad++
		}
	}
	return math.Max(0, 1-0.1*float64(bad))
}
