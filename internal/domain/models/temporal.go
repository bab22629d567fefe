package models

// TemporalUncertainty is the uncertainty triple reported by a sequence model.
type TemporalUncertainty struct {
	Epistemic float64 `json:"epistemic"`
	Aleatoric float64 `json:"aleatoric"`
	Total     float64 `json:"total"`
}

// TemporalOutput is what a temporal sequence model returns for a window of records.
type TemporalOutput struct {
	Signal             Signal              `json:"signal"`
	Confidence         float64             `json:"confidence"`
	Probabilities      ClassProbabilities  `json:"probability"`
	TrendStrength      float64             `json:"trend_strength"`
	VolatilityForecast float64             `json:"volatility_forecast"`
	MomentumScore      float64             `json:"momentum_score"`
	AttentionWeights   []float64           `json:"attention_weights"`
	Uncertainty        TemporalUncertainty `json:"uncertainty"`
	HiddenState        []float64           `json:"hidden_state,omitempty"`
}
