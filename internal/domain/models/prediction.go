package models

import "time"

type Signal string

const (
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
	SignalBuy  Signal = "buy"
)

// SignalClasses is the fixed class order of every probability vector.
var SignalClasses = [3]Signal{SignalSell, SignalHold, SignalBuy}

// SignalFromIndex maps a class index to its signal. Unknown indexes map to hold.
func SignalFromIndex(i int) Signal {
	if i < 0 || i >= len(SignalClasses) {
		return SignalHold
	}
	return SignalClasses[i]
}

// Index returns the class index of s, or -1 when s is not a known signal.
func (s Signal) Index() int {
	for i, c := range SignalClasses {
		if c == s {
			return i
		}
	}
	return -1
}

type ClassProbabilities struct {
	Sell float64 `json:"sell"`
	Hold float64 `json:"hold"`
	Buy  float64 `json:"buy"`
}

// Slice returns the probabilities in class order.
func (p ClassProbabilities) Slice() []float64 {
	return []float64{p.Sell, p.Hold, p.Buy}
}

// ProbabilitiesFromSlice reads the first three entries in class order. Missing entries are 0.
func ProbabilitiesFromSlice(p []float64) ClassProbabilities {
	var out ClassProbabilities
	dst := []*float64{&out.Sell, &out.Hold, &out.Buy}
	for i := 0; i < len(dst) && i < len(p); i++ {
		*dst[i] = p[i]
	}
	return out
}

type DetectedPattern struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type TemporalDiagnostics struct {
	TrendStrength      float64   `json:"trend_strength"`
	VolatilityForecast float64   `json:"volatility_forecast"`
	Momentum           float64   `json:"momentum"`
	AttentionWeights   []float64 `json:"attention_weights"`
}

type Uncertainty struct {
	Epistemic float64 `json:"epistemic"`
	Aleatoric float64 `json:"aleatoric"`
	Total     float64 `json:"total"`
	Spatial   float64 `json:"spatial"`
	Temporal  float64 `json:"temporal"`
}

type PredictionMetadata struct {
	ProcessingTime time.Duration `json:"processing_time"`
	DataQuality    float64       `json:"data_quality"`
	ConvLayers     int           `json:"conv_layers"`
	RecordCount    int           `json:"record_count"`
	Mode           string        `json:"mode"`
}

// Prediction is the full output of one hybrid inference call.
type Prediction struct {
	Symbol            string              `json:"symbol,omitempty"`
	Signal            Signal              `json:"signal"`
	Confidence        float64             `json:"confidence"`
	Probabilities     ClassProbabilities  `json:"probabilities"`
	Patterns          []DetectedPattern   `json:"patterns"`
	SpatialFeatures   []float64           `json:"spatial_features"`
	ActivationMaps    [][][]float64       `json:"activation_maps"` // layer, channel, position
	Temporal          TemporalDiagnostics `json:"temporal"`
	FusedFeatures     []float64           `json:"fused_features"`
	FeatureImportance []float64           `json:"feature_importance"`
	Correlation       float64             `json:"correlation"`
	PriceTarget       float64             `json:"price_target"`
	Uncertainty       Uncertainty         `json:"uncertainty"`
	Metadata          PredictionMetadata  `json:"metadata"`
}

// SignalEvent is the compact form of a prediction published downstream.
type SignalEvent struct {
	Symbol        string             `json:"symbol"`
	Timestamp     time.Time          `json:"timestamp"`
	Signal        Signal             `json:"signal"`
	Confidence    float64            `json:"confidence"`
	Probabilities ClassProbabilities `json:"probabilities"`
	PriceTarget   float64            `json:"price_target"`
	Patterns      []string           `json:"patterns,omitempty"`
	DataQuality   float64            `json:"data_quality"`
}

// NewSignalEvent extracts the publishable fields of p.
func NewSignalEvent(p Prediction, at time.Time) SignalEvent {
	names := make([]string, 0, len(p.Patterns))
	for _, pt := range p.Patterns {
		names = append(names, pt.Name)
	}
	return SignalEvent{
		Symbol:        p.Symbol,
		Timestamp:     at,
		Signal:        p.Signal,
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
		PriceTarget:   p.PriceTarget,
		Patterns:      names,
		DataQuality:   p.Metadata.DataQuality,
	}
}
