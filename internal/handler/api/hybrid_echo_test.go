package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	models "FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/service/ratelimit"
	"FinHybrid/internal/services/features"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/internal/services/temporal"
	"FinHybrid/internal/usecase"
	xhttp "FinHybrid/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	e     *echo.Echo
	model *hybrid.Model
	train *usecase.TrainUseCase
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	cfg := hybrid.DefaultConfig()
	cfg.Epochs = 1
	model, err := hybrid.NewModel(cfg, temporal.NewLocalAdapter(cfg.LSTM.HiddenSize, cfg.LSTM.Attention))
	require.NoError(t, err)

	predict := usecase.NewPredictUseCase(model, nil, nil, nil, nil)
	train := usecase.NewTrainUseCase(model, usecase.WithTrainTimeout(time.Minute))
	h := NewHybridEchoHandler(nil, predict, train, model, limiter)

	e := echo.New()
	h.RegisterRoutes(e)
	return &testServer{e: e, model: model, train: train}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) envelope {
	t.Helper()
	var payload *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = strings.NewReader(string(b))
	} else {
		payload = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, payload)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func sampleRecords(n int) []models.FeatureRecord {
	cs := make([]models.Candle, n)
	t0 := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	price := 50.0
	for i := range cs {
		price *= 1 + 0.002*float64((i%7)-3)
		cs[i] = models.Candle{Bucket: t0.Add(time.Duration(i) * time.Minute), Symbol: "NVDA", Close: price, Volume: 10}
	}
	return features.BuildRecords(cs, models.MarketSnapshot{Symbol: "NVDA", MarketCap: 1e12, SharesOutstanding: 2.5e9})
}

func TestHybridEcho_PredictInline(t *testing.T) {
	s := newTestServer(t, nil)
	env := s.do(t, http.MethodPost, "/api/hybrid/predict", map[string]interface{}{"records": sampleRecords(40)})
	require.Equal(t, http.StatusOK, env.Status)

	var pred models.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &pred))
	assert.Equal(t, "NVDA", pred.Symbol)
	assert.Contains(t, []models.Signal{models.SignalSell, models.SignalHold, models.SignalBuy}, pred.Signal)
	assert.InDelta(t, 1.0, pred.Probabilities.Sell+pred.Probabilities.Hold+pred.Probabilities.Buy, 1e-9)
	assert.Equal(t, 40, pred.Metadata.RecordCount)
}

func TestHybridEcho_PredictValidation(t *testing.T) {
	s := newTestServer(t, nil)
	env := s.do(t, http.MethodPost, "/api/hybrid/predict", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = s.do(t, http.MethodPost, "/api/hybrid/predict", map[string]interface{}{"symbol": "NVDA", "tf": "1h"})
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestHybridEcho_PredictWithoutStore(t *testing.T) {
	s := newTestServer(t, nil)
	env := s.do(t, http.MethodPost, "/api/hybrid/predict", map[string]interface{}{"symbol": "NVDA"})
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}

func TestHybridEcho_TrainFlow(t *testing.T) {
	s := newTestServer(t, nil)

	env := s.do(t, http.MethodGet, "/api/hybrid/train/status", nil)
	var st models.TrainingStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, models.TrainingIdle, st.State)

	records := sampleRecords(20)
	body := models.TrainRequest{Samples: []models.TrainingSample{
		{Records: records[:10], Label: models.SignalBuy},
		{Records: records[10:], Label: models.SignalSell},
	}}
	env = s.do(t, http.MethodPost, "/api/hybrid/train", body)
	require.Equal(t, http.StatusAccepted, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, models.TrainingRunning, st.State)
	assert.NotEmpty(t, st.JobID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, s.train.Wait(ctx))

	env = s.do(t, http.MethodGet, "/api/hybrid/train/status", nil)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, models.TrainingCompleted, st.State)
	assert.Equal(t, 1, st.Epochs)

	env = s.do(t, http.MethodGet, "/api/hybrid/history?last=5", nil)
	var hist []models.EpochMetrics
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Epoch)
	assert.Equal(t, 2, hist[0].Samples)
}

func TestHybridEcho_TrainValidation(t *testing.T) {
	s := newTestServer(t, nil)
	env := s.do(t, http.MethodPost, "/api/hybrid/train", map[string]interface{}{"samples": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = s.do(t, http.MethodPost, "/api/hybrid/train", map[string]interface{}{
		"samples": []interface{}{map[string]interface{}{"records": sampleRecords(2), "label": "moon"}},
	})
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestHybridEcho_ConfigAndPatterns(t *testing.T) {
	s := newTestServer(t, nil)

	env := s.do(t, http.MethodGet, "/api/hybrid/config", nil)
	var cfg struct {
		Mode   string        `json:"mode"`
		Config hybrid.Config `json:"config"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, string(hybrid.ModeInference), cfg.Mode)
	assert.Equal(t, hybrid.DefaultConfig().CNN.Filters, cfg.Config.CNN.Filters)

	env = s.do(t, http.MethodGet, "/api/hybrid/patterns", nil)
	var templates []hybrid.PatternTemplate
	require.NoError(t, json.Unmarshal(env.Data, &templates))
	assert.Len(t, templates, len(hybrid.DefaultTemplates()))
}

func TestHybridEcho_RateLimited(t *testing.T) {
	s := newTestServer(t, ratelimit.New(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/api/hybrid/patterns", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hybrid/patterns", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestToAppError(t *testing.T) {
	fallback := xhttp.InternalError("boom")
	cases := []struct {
		err    error
		status int
	}{
		{hybrid.ErrEmptyInput, http.StatusBadRequest},
		{usecase.ErrInvalidLabel, http.StatusBadRequest},
		{hybrid.ErrTrainingInProgress, http.StatusConflict},
		{domrepo.ErrNotFound, http.StatusNotFound},
		{usecase.ErrNoFeatureStore, http.StatusServiceUnavailable},
		{errors.New("upstream"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, toAppError(c.err, fallback).Status, c.err.Error())
	}
}
