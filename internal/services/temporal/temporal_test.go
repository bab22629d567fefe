package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FinHybrid/internal/domain/models"
	"FinHybrid/pkg/cache"
	applogger "FinHybrid/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func window(n int, rsi, macd, bb float64) []models.FeatureRecord {
	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	out := make([]models.FeatureRecord, n)
	for i := range out {
		out[i] = models.FeatureRecord{
			Symbol:      "AAPL",
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
			Technical:   models.TechnicalIndicators{RSI: rsi, MACD: macd, BollingerPosition: bb},
			Statistical: models.StatisticalFeatures{Volatility: 0.2},
			Market:      models.MarketFeatures{MarketCap: 3e12, PERatio: 30, SharesOutstanding: 1.5e10},
		}
	}
	return out
}

func temporalResponse() models.TemporalOutput {
	return models.TemporalOutput{
		Signal:        models.SignalBuy,
		Confidence:    0.6,
		Probabilities: models.ClassProbabilities{Sell: 0.1, Hold: 0.3, Buy: 0.6},
		TrendStrength: 0.4,
		HiddenState:   []float64{0.1, 0.2},
	}
}

func TestHTTPAdapter_Success(t *testing.T) {
	var got sequenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, predictPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(temporalResponse())
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, time.Second)
	out, err := a.PredictSequence(context.Background(), window(3, 60, 0.1, 0.7))
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, out.Signal)
	assert.Equal(t, []float64{0.1, 0.2}, out.HiddenState)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Len(t, got.Records, 3)
}

func TestHTTPAdapter_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(temporalResponse())
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, time.Second, WithRetries(2, time.Millisecond), WithHTTPLogger(applogger.Nop()))
	_, err := a.PredictSequence(context.Background(), window(2, 50, 0, 0.5))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPAdapter_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad window", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, time.Second, WithRetries(3, time.Millisecond))
	_, err := a.PredictSequence(context.Background(), window(2, 50, 0, 0.5))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "bad window")
}

func TestHTTPAdapter_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, time.Second, WithRetries(1, time.Millisecond))
	_, err := a.PredictSequence(context.Background(), window(2, 50, 0, 0.5))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPAdapter_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewHTTPAdapter(srv.URL, time.Second, WithRetries(5, time.Second))
	_, err := a.PredictSequence(ctx, window(2, 50, 0, 0.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPAdapter_NotConfigured(t *testing.T) {
	_, err := NewHTTPAdapter("", time.Second).PredictSequence(context.Background(), window(1, 50, 0, 0.5))
	require.Error(t, err)
}

func TestNormalizeOutput(t *testing.T) {
	out := models.TemporalOutput{Probabilities: models.ClassProbabilities{Sell: 0.2, Hold: 0.2, Buy: 0.6}}
	require.NoError(t, normalizeOutput(&out))
	assert.Equal(t, models.SignalBuy, out.Signal)
	assert.InDelta(t, 0.6, out.Confidence, 1e-12)

	bad := models.TemporalOutput{Probabilities: models.ClassProbabilities{Sell: -1, Buy: 2}}
	assert.Error(t, normalizeOutput(&bad))

	empty := models.TemporalOutput{}
	assert.Error(t, normalizeOutput(&empty))

	unknown := models.TemporalOutput{Signal: "short", Probabilities: models.ClassProbabilities{Hold: 1}}
	assert.Error(t, normalizeOutput(&unknown))
}

func TestSanitizeRecords(t *testing.T) {
	in := window(2, 50, 0, 0.5)
	in[1].Technical.RSI = math.NaN()
	in[1].Market.MarketCap = math.Inf(1)

	out := sanitizeRecords(in)
	assert.Equal(t, 0.0, out[1].Technical.RSI)
	assert.Equal(t, 0.0, out[1].Market.MarketCap)
	assert.True(t, math.IsNaN(in[1].Technical.RSI), "input left untouched")

	_, err := json.Marshal(out)
	require.NoError(t, err)
}

func TestLocalAdapter_Directions(t *testing.T) {
	a := NewLocalAdapter(8, true)
	ctx := context.Background()

	bull, err := a.PredictSequence(ctx, window(10, 80, 1.5, 0.95))
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, bull.Signal)

	bear, err := a.PredictSequence(ctx, window(10, 20, -1.5, 0.05))
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, bear.Signal)

	flat, err := a.PredictSequence(ctx, window(10, 50, 0, 0.5))
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, flat.Signal)
	assert.InDelta(t, 0, flat.TrendStrength, 1e-12)
	assert.InDelta(t, 0, flat.MomentumScore, 1e-12)
}

func TestLocalAdapter_OutputShape(t *testing.T) {
	a := NewLocalAdapter(20, true)
	out, err := a.PredictSequence(context.Background(), window(6, 65, 0.3, 0.8))
	require.NoError(t, err)

	assert.InDelta(t, 1, floats.Sum(out.Probabilities.Slice()), 1e-9)
	assert.Equal(t, out.Probabilities.Slice()[out.Signal.Index()], out.Confidence)
	require.Len(t, out.AttentionWeights, 6)
	assert.InDelta(t, 1, floats.Sum(out.AttentionWeights), 1e-9)
	for i := 1; i < len(out.AttentionWeights); i++ {
		assert.Greater(t, out.AttentionWeights[i], out.AttentionWeights[i-1])
	}
	assert.Len(t, out.HiddenState, 20)
	for _, h := range out.HiddenState {
		assert.LessOrEqual(t, math.Abs(h), 1.0)
	}
	assert.InDelta(t, 0.2, out.VolatilityForecast, 1e-12)
	assert.InDelta(t, math.Hypot(out.Uncertainty.Epistemic, out.Uncertainty.Aleatoric), out.Uncertainty.Total, 1e-12)
}

func TestLocalAdapter_UniformWithoutAttention(t *testing.T) {
	out, err := NewLocalAdapter(0, false).PredictSequence(context.Background(), window(4, 55, 0.1, 0.6))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, out.AttentionWeights)
	assert.Nil(t, out.HiddenState)
}

func TestLocalAdapter_MomentumFollowsChange(t *testing.T) {
	recs := window(8, 50, 0, 0.5)
	for i := range recs {
		recs[i].Technical.RSI = 30 + float64(i)*6
	}
	out, err := NewLocalAdapter(4, true).PredictSequence(context.Background(), recs)
	require.NoError(t, err)
	assert.Greater(t, out.MomentumScore, 0.0)
}

func TestLocalAdapter_NonFiniteInput(t *testing.T) {
	recs := window(3, 50, 0, 0.5)
	recs[1].Technical.RSI = math.NaN()
	recs[2].Statistical.Volatility = math.Inf(1)

	out, err := NewLocalAdapter(4, true).PredictSequence(context.Background(), recs)
	require.NoError(t, err)
	for _, p := range out.Probabilities.Slice() {
		assert.False(t, math.IsNaN(p))
	}
	assert.False(t, math.IsNaN(out.VolatilityForecast))
}

func TestLocalAdapter_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalAdapter(4, true).PredictSequence(ctx, window(3, 50, 0, 0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

type countingAdapter struct {
	calls atomic.Int32
	err   error
}

func (c *countingAdapter) PredictSequence(ctx context.Context, f []models.FeatureRecord) (models.TemporalOutput, error) {
	c.calls.Add(1)
	if c.err != nil {
		return models.TemporalOutput{}, c.err
	}
	return NewLocalAdapter(4, true).PredictSequence(ctx, f)
}

func TestCachedAdapter(t *testing.T) {
	next := &countingAdapter{}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	a := NewCachedAdapter(next, mc, time.Minute, applogger.Nop())
	ctx := context.Background()

	w := window(5, 70, 0.5, 0.8)
	first, err := a.PredictSequence(ctx, w)
	require.NoError(t, err)
	second, err := a.PredictSequence(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = a.PredictSequence(ctx, window(5, 30, -0.5, 0.2))
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())

	hits, misses := a.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCachedAdapter_ErrorsAreNotCached(t *testing.T) {
	next := &countingAdapter{err: errors.New("model offline")}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	a := NewCachedAdapter(next, mc, time.Minute, nil)

	w := window(3, 50, 0, 0.5)
	_, err := a.PredictSequence(context.Background(), w)
	require.ErrorIs(t, err, next.err)
	_, err = a.PredictSequence(context.Background(), w)
	require.ErrorIs(t, err, next.err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestWindowKey(t *testing.T) {
	w := window(3, 50, 0, 0.5)
	assert.Equal(t, WindowKey(w), WindowKey(window(3, 50, 0, 0.5)))

	changed := window(3, 50, 0, 0.5)
	changed[2].Technical.RSI = 51
	assert.NotEqual(t, WindowKey(w), WindowKey(changed))

	nan := window(3, 50, 0, 0.5)
	nan[0].Technical.MACD = math.NaN()
	assert.Equal(t, WindowKey(nan), WindowKey(nan))
}
