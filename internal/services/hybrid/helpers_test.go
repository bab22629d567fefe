package hybrid

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"FinHybrid/internal/domain/models"
)

type stubTemporal struct {
	out   models.TemporalOutput
	err   error
	calls atomic.Int32
	block chan struct{} // when set, PredictSequence waits for it to close
	seen  chan struct{} // signalled on first call when set
}

func (s *stubTemporal) PredictSequence(ctx context.Context, _ []models.FeatureRecord) (models.TemporalOutput, error) {
	if s.calls.Add(1) == 1 && s.seen != nil {
		close(s.seen)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return models.TemporalOutput{}, ctx.Err()
		}
	}
	return s.out, s.err
}

type panickingTemporal struct{}

func (panickingTemporal) PredictSequence(context.Context, []models.FeatureRecord) (models.TemporalOutput, error) {
	panic("index out of range")
}

func holdOutput() models.TemporalOutput {
	return models.TemporalOutput{
		Signal:             models.SignalHold,
		Confidence:         0.6,
		Probabilities:      models.ClassProbabilities{Sell: 0.2, Hold: 0.6, Buy: 0.2},
		TrendStrength:      0.1,
		VolatilityForecast: 0.12,
		MomentumScore:      -0.05,
		AttentionWeights:   []float64{0.1, 0.2, 0.3, 0.4},
		Uncertainty:        models.TemporalUncertainty{Epistemic: 0.1, Aleatoric: 0.2, Total: 0.25},
		HiddenState:        []float64{0.5, -0.5, 0.25},
	}
}

// syntheticRecords builds n records with RSI 50 and volatility 0.1.
func syntheticRecords(n int) []models.FeatureRecord {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.FeatureRecord, n)
	for i := range out {
		out[i] = models.FeatureRecord{
			Symbol:    "AAPL",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Technical: models.TechnicalIndicators{
				RSI:               50,
				MACD:              0.2 * float64(i%3),
				MACDSignal:        0.1,
				BollingerPosition: 0.5,
			},
			Statistical: models.StatisticalFeatures{
				Volatility:  0.1,
				Skewness:    -0.2,
				Kurtosis:    3.1,
				SharpeRatio: 1.2,
			},
			Market: models.MarketFeatures{
				MarketCap:         2.5e12,
				PERatio:           28,
				PBRatio:           40,
				DividendYield:     0.005,
				SharesOutstanding: 1.6e10,
			},
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Epochs = 3
	cfg.LSTM.HiddenSize = 4
	return cfg
}

func newTestModel(t *testing.T, cfg Config, temporal *stubTemporal) *Model {
	t.Helper()
	m, err := NewModel(cfg, temporal)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}
