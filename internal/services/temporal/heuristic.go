package temporal

import (
	"context"
	"math"

	"FinHybrid/internal/domain/models"
	domsvc "FinHybrid/internal/domain/service"
	"FinHybrid/internal/services/numeric"

	"gonum.org/v1/gonum/floats"
)

var _ domsvc.TemporalAdapter = (*LocalAdapter)(nil)

const (
	// volAlpha is the smoothing factor of the GARCH-like volatility forecast.
	volAlpha = 0.06
	// shortHorizon is the number of trailing steps in the short momentum leg.
	shortHorizon = 5
	// recencyScale sharpens the attention toward recent steps.
	recencyScale = 3.0
	// signalGain maps the composite score to class logits.
	signalGain = 3.0
	// holdBias favours hold when the composite score is near zero.
	holdBias = 0.5
)

// LocalAdapter is a deterministic stand-in for a trained sequence model. It scores each step from its
// technical indicators and aggregates the window with recency attention.
type LocalAdapter struct {
	hiddenSize int
	attention  bool
}

// NewLocalAdapter returns an adapter whose hidden state has hiddenSize entries.
func NewLocalAdapter(hiddenSize int, attention bool) *LocalAdapter {
	if hiddenSize < 0 {
		hiddenSize = 0
	}
	return &LocalAdapter{hiddenSize: hiddenSize, attention: attention}
}

func (a *LocalAdapter) PredictSequence(ctx context.Context, features []models.FeatureRecord) (models.TemporalOutput, error) {
	if err := ctx.Err(); err != nil {
		return models.TemporalOutput{}, err
	}
	n := len(features)
	if n == 0 {
		return models.TemporalOutput{}, nil
	}

	scores := make([]float64, n)
	vols := make([]float64, n)
	for i, r := range features {
		scores[i] = stepScore(r)
		vols[i] = finite(r.Statistical.Volatility)
	}

	weights := a.attentionWeights(n)
	composite := floats.Dot(weights, scores)

	probs := numeric.Softmax([]float64{-signalGain * composite, holdBias - math.Abs(composite), signalGain * composite})
	best := numeric.ArgMax(probs)
	volForecast := ewma(vols, volAlpha)

	epistemic := 1 / math.Sqrt(float64(n)+1)
	aleatoric := math.Min(1, volForecast)

	return models.TemporalOutput{
		Signal:             models.SignalFromIndex(best),
		Confidence:         probs[best],
		Probabilities:      models.ProbabilitiesFromSlice(probs),
		TrendStrength:      math.Abs(composite),
		VolatilityForecast: volForecast,
		MomentumScore:      momentum(scores),
		AttentionWeights:   weights,
		Uncertainty: models.TemporalUncertainty{
			Epistemic: epistemic,
			Aleatoric: aleatoric,
			Total:     math.Hypot(epistemic, aleatoric),
		},
		HiddenState: a.hiddenState(features, weights),
	}, nil
}

// stepScore is a bullish (+) / bearish (-) reading in [-1, 1] built from the technical indicators.
func stepScore(r models.FeatureRecord) float64 {
	t := r.Technical
	rsi := math.Tanh((finite(t.RSI) - 50) / 20)
	macd := math.Tanh(finite(t.MACD) - finite(t.MACDSignal))
	band := math.Max(-1, math.Min(1, 2*(finite(t.BollingerPosition)-0.5)))
	return 0.4*rsi + 0.4*macd + 0.2*band
}

// attentionWeights returns a distribution over steps, recency-weighted when attention is enabled.
func (a *LocalAdapter) attentionWeights(n int) []float64 {
	if !a.attention || n == 1 {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w
	}
	logits := make([]float64, n)
	for i := range logits {
		logits[i] = recencyScale * float64(i) / float64(n-1)
	}
	return numeric.Softmax(logits)
}

// momentum blends the short and whole-window change of the step score, 0.7 and 0.3.
func momentum(scores []float64) float64 {
	n := len(scores)
	if n < 2 {
		return 0
	}
	short := n - shortHorizon
	if short < 0 {
		short = 0
	}
	return math.Tanh(0.7*(scores[n-1]-scores[short]) + 0.3*(scores[n-1]-scores[0]))
}

func ewma(xs []float64, alpha float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	v := xs[0]
	for _, x := range xs[1:] {
		v = alpha*x + (1-alpha)*v
	}
	return v
}

// hiddenState summarises the attended window into hiddenSize bounded values.
func (a *LocalAdapter) hiddenState(features []models.FeatureRecord, weights []float64) []float64 {
	if a.hiddenSize == 0 {
		return nil
	}
	var pooled []float64
	for i, r := range features {
		vals := append(append(r.Technical.Values(), r.Statistical.Values()...), r.Market.Values()...)
		if pooled == nil {
			pooled = make([]float64, len(vals))
		}
		for j, v := range vals {
			pooled[j] += weights[i] * math.Tanh(finite(v)/scaleFor(j))
		}
	}
	out := make([]float64, a.hiddenSize)
	for k := range out {
		out[k] = pooled[k%len(pooled)]
		if k >= len(pooled) {
			// later cycles see a phase-shifted mix so entries are not plain repeats
			out[k] = math.Tanh(pooled[k%len(pooled)] - pooled[(k+1)%len(pooled)])
		}
	}
	return out
}

// scaleFor returns a typical magnitude per encoded feature so tanh does not saturate.
func scaleFor(j int) float64 {
	switch j {
	case 0: // rsi
		return 100
	case 8: // market cap
		return 1e12
	case 9, 10: // pe, pb
		return 50
	default:
		return 1
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
