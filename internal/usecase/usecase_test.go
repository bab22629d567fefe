package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/internal/services/temporal"
	"FinHybrid/pkg/cache"
	pkgkafka "FinHybrid/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	mu       sync.Mutex
	got      []models.FeatureRecord
	pred     models.Prediction
	err      error
	trainErr error
	release  chan struct{}
	history  []models.EpochMetrics
}

func (m *stubModel) Predict(_ context.Context, f []models.FeatureRecord) (models.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = f
	return m.pred, m.err
}

func (m *stubModel) Train(ctx context.Context, data [][]models.FeatureRecord, _ [][]float64) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, models.EpochMetrics{Epoch: len(m.history) + 1, Samples: len(data)})
	return m.trainErr
}

func (m *stubModel) History() []models.EpochMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EpochMetrics(nil), m.history...)
}

type stubStore struct {
	candles []models.Candle
	snap    models.MarketSnapshot
	snapErr error
	err     error
	gotN    int
	gotTF   domrepo.Timeframe
}

func (s *stubStore) GetLatestNCandles(_ context.Context, _ string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.gotN, s.gotTF = n, tf
	return s.candles, s.err
}

func (s *stubStore) GetMarketSnapshot(_ context.Context, _ string) (models.MarketSnapshot, error) {
	return s.snap, s.snapErr
}

type stubPublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
	err    error
}

func (p *stubPublisher) PublishSignal(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

type stubMetrics struct {
	mu          sync.Mutex
	predictions []models.Signal
	quality     map[string]float64
	errs        []string
}

func newStubMetrics() *stubMetrics { return &stubMetrics{quality: map[string]float64{}} }

func (m *stubMetrics) RecordPrediction(_ string, s models.Signal, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = append(m.predictions, s)
}

func (m *stubMetrics) RecordDataQuality(symbol string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quality[symbol] = score
}

func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, kind)
}

func (m *stubMetrics) RecordLatency(string, float64)    {}
func (m *stubMetrics) RecordEpoch(models.EpochMetrics) {}

func (m *stubMetrics) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errs...)
}

func candles(symbol string, n int) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	price := 100.0
	for i := range out {
		price += float64(i%5) - 1.8
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Minute),
			Symbol: symbol,
			Open:   price - 0.2,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 1000 + float64(i),
		}
	}
	return out
}

func TestPredictUseCase_LoadsFromStore(t *testing.T) {
	store := &stubStore{candles: candles("AAPL", 30), snap: models.MarketSnapshot{Symbol: "AAPL", PERatio: 25}}
	model := &stubModel{pred: models.Prediction{Symbol: "AAPL", Signal: models.SignalBuy, Confidence: 0.7,
		Metadata: models.PredictionMetadata{DataQuality: 0.9}}}
	met := newStubMetrics()
	uc := NewPredictUseCase(model, store, nil, met, nil)

	pred, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "AAPL", N: 30, TF: "5m"})
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, pred.Signal)
	assert.Equal(t, 30, store.gotN)
	assert.Equal(t, domrepo.TF5m, store.gotTF)
	require.Len(t, model.got, 30)
	assert.Equal(t, 25.0, model.got[0].Market.PERatio)
	assert.Equal(t, []models.Signal{models.SignalBuy}, met.predictions)
	assert.Equal(t, 0.9, met.quality["AAPL"])
}

func TestPredictUseCase_MissingSnapshotIsNotAnError(t *testing.T) {
	store := &stubStore{
		candles: candles("MSFT", 10),
		snapErr: fmt.Errorf("snapshot MSFT: %w", domrepo.ErrNotFound),
	}
	model := &stubModel{pred: models.Prediction{Signal: models.SignalHold}}
	uc := NewPredictUseCase(model, store, nil, nil, nil)

	pred, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "MSFT", N: 10, TF: "1m"})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", pred.Symbol)
	require.Len(t, model.got, 10)
	assert.Zero(t, model.got[0].Market.MarketCap)
}

func TestPredictUseCase_StoreErrors(t *testing.T) {
	met := newStubMetrics()
	store := &stubStore{err: errors.New("connection refused")}
	uc := NewPredictUseCase(&stubModel{}, store, nil, met, nil)

	_, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "AAPL", N: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load candles")
	assert.Equal(t, []string{"predict_load"}, met.errors())

	store = &stubStore{candles: candles("AAPL", 5), snapErr: errors.New("timeout")}
	uc = NewPredictUseCase(&stubModel{}, store, nil, nil, nil)
	_, err = uc.Execute(context.Background(), models.PredictRequest{Symbol: "AAPL", N: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load snapshot")
}

func TestPredictUseCase_NoStore(t *testing.T) {
	uc := NewPredictUseCase(&stubModel{}, nil, nil, nil, nil)
	_, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "AAPL", N: 5})
	assert.ErrorIs(t, err, ErrNoFeatureStore)
}

func TestPredictUseCase_InlineRecordsSkipStore(t *testing.T) {
	store := &stubStore{err: errors.New("must not be called")}
	model := &stubModel{pred: models.Prediction{Signal: models.SignalSell}}
	uc := NewPredictUseCase(model, store, nil, nil, nil)

	records := []models.FeatureRecord{{Technical: models.TechnicalIndicators{RSI: 40}}, {Technical: models.TechnicalIndicators{RSI: 45}, Symbol: "X"}}
	pred, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "TSLA", Records: records})
	require.NoError(t, err)
	assert.Equal(t, "TSLA", pred.Symbol)
	assert.Zero(t, store.gotN)
	require.Len(t, model.got, 2)
	assert.Equal(t, "TSLA", model.got[0].Symbol)
	assert.Equal(t, "X", model.got[1].Symbol)
	assert.Empty(t, records[0].Symbol, "caller records are not mutated")
}

func TestPredictUseCase_ModelError(t *testing.T) {
	met := newStubMetrics()
	model := &stubModel{err: hybrid.ErrEmptyInput}
	uc := NewPredictUseCase(model, nil, nil, met, nil)

	_, err := uc.Execute(context.Background(), models.PredictRequest{Records: []models.FeatureRecord{{Technical: models.TechnicalIndicators{RSI: 50}}}})
	assert.ErrorIs(t, err, hybrid.ErrEmptyInput)
	assert.Equal(t, []string{"predict"}, met.errors())
	assert.Empty(t, met.predictions)
}

func TestPredictUseCase_Publish(t *testing.T) {
	pub := &stubPublisher{}
	model := &stubModel{pred: models.Prediction{
		Symbol:     "AAPL",
		Signal:     models.SignalBuy,
		Confidence: 0.8,
		Patterns:   []models.DetectedPattern{{Name: "bullish_engulfing", Confidence: 0.9}},
	}}
	uc := NewPredictUseCase(model, nil, pub, nil, nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return fixed }

	records := []models.FeatureRecord{{Technical: models.TechnicalIndicators{RSI: 50}}}
	_, err := uc.Execute(context.Background(), models.PredictRequest{Records: records})
	require.NoError(t, err)
	assert.Empty(t, pub.events, "publish not requested")

	_, err = uc.Execute(context.Background(), models.PredictRequest{Records: records, Publish: true})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.Equal(t, fixed, ev.Timestamp)
	assert.Equal(t, []string{"bullish_engulfing"}, ev.Patterns)
}

func TestPredictUseCase_PublishFailureKeepsPrediction(t *testing.T) {
	met := newStubMetrics()
	pub := &stubPublisher{err: errors.New("broker down")}
	model := &stubModel{pred: models.Prediction{Symbol: "AAPL", Signal: models.SignalHold}}
	uc := NewPredictUseCase(model, nil, pub, met, nil)

	pred, err := uc.Execute(context.Background(), models.PredictRequest{Records: []models.FeatureRecord{{Technical: models.TechnicalIndicators{RSI: 50}}}, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, pred.Signal)
	assert.Equal(t, []string{"publish_signal"}, met.errors())
}

func TestPredictUseCase_WithHybridModel(t *testing.T) {
	model, err := hybrid.NewModel(hybrid.DefaultConfig(), temporal.NewLocalAdapter(hybrid.DefaultConfig().LSTM.HiddenSize, true))
	require.NoError(t, err)
	store := &stubStore{candles: candles("AAPL", 60), snapErr: domrepo.ErrNotFound}
	pub := &stubPublisher{}
	uc := NewPredictUseCase(model, store, pub, nil, nil)

	pred, err := uc.Execute(context.Background(), models.PredictRequest{Symbol: "AAPL", N: 60, TF: "1m", Publish: true})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", pred.Symbol)
	assert.InDelta(t, 1.0, pred.Probabilities.Sell+pred.Probabilities.Hold+pred.Probabilities.Buy, 1e-9)
	require.Len(t, pub.events, 1)
	assert.Equal(t, pred.Signal, pub.events[0].Signal)
}

func trainRequest(n int, label models.Signal) models.TrainRequest {
	req := models.TrainRequest{}
	for i := 0; i < n; i++ {
		req.Samples = append(req.Samples, models.TrainingSample{
			Records: []models.FeatureRecord{{Technical: models.TechnicalIndicators{RSI: 30 + float64(i)}}},
			Label:   label,
		})
	}
	return req
}

func TestTrainingSet(t *testing.T) {
	data, labels, err := trainingSet(trainRequest(2, models.SignalBuy))
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, [][]float64{{0, 0, 1}, {0, 0, 1}}, labels)

	_, _, err = trainingSet(models.TrainRequest{})
	assert.ErrorIs(t, err, hybrid.ErrEmptyInput)

	_, _, err = trainingSet(trainRequest(1, "strong_buy"))
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestTrainUseCase_Lifecycle(t *testing.T) {
	model := &stubModel{release: make(chan struct{})}
	met := newStubMetrics()
	uc := NewTrainUseCase(model, WithTrainMetrics(met), WithTrainTimeout(time.Minute))
	assert.Equal(t, models.TrainingIdle, uc.Status().State)

	st, err := uc.Start(context.Background(), trainRequest(3, models.SignalHold))
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunning, st.State)
	assert.NotEmpty(t, st.JobID)
	assert.Equal(t, 3, st.Samples)
	require.NotNil(t, st.StartedAt)

	_, err = uc.Start(context.Background(), trainRequest(1, models.SignalHold))
	assert.ErrorIs(t, err, hybrid.ErrTrainingInProgress)

	close(model.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, uc.Wait(ctx))

	done := uc.Status()
	assert.Equal(t, models.TrainingCompleted, done.State)
	assert.Equal(t, st.JobID, done.JobID)
	assert.Equal(t, 1, done.Epochs)
	require.NotNil(t, done.FinishedAt)
	assert.Empty(t, done.Error)
	assert.Len(t, uc.History(0), 1)
}

func TestTrainUseCase_Failure(t *testing.T) {
	model := &stubModel{trainErr: errors.New("diverged")}
	met := newStubMetrics()
	uc := NewTrainUseCase(model, WithTrainMetrics(met))

	_, err := uc.Start(context.Background(), trainRequest(1, models.SignalSell))
	require.NoError(t, err)
	require.NoError(t, uc.Wait(context.Background()))

	st := uc.Status()
	assert.Equal(t, models.TrainingFailed, st.State)
	assert.Equal(t, "diverged", st.Error)
	assert.Equal(t, []string{"train"}, met.errors())

	// a failed job does not block the next one
	model.trainErr = nil
	_, err = uc.Start(context.Background(), trainRequest(1, models.SignalSell))
	require.NoError(t, err)
	require.NoError(t, uc.Wait(context.Background()))
	assert.Equal(t, models.TrainingCompleted, uc.Status().State)
}

func TestTrainUseCase_SharedLock(t *testing.T) {
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()

	ok, err := mem.TryLock(context.Background(), trainLockKey, "other-replica", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	uc := NewTrainUseCase(&stubModel{}, WithTrainLock(mem, time.Minute))
	_, err = uc.Start(context.Background(), trainRequest(1, models.SignalBuy))
	assert.ErrorIs(t, err, hybrid.ErrTrainingInProgress)
	assert.Equal(t, models.TrainingIdle, uc.Status().State)

	require.NoError(t, mem.Unlock(context.Background(), trainLockKey, "other-replica"))
	_, err = uc.Start(context.Background(), trainRequest(1, models.SignalBuy))
	require.NoError(t, err)
	require.NoError(t, uc.Wait(context.Background()))

	// lock is released once the job ends
	ok, err = mem.TryLock(context.Background(), trainLockKey, "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTrainUseCase_LockHeldForWholeJob(t *testing.T) {
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()
	lease := 60 * time.Millisecond

	slow := &stubModel{release: make(chan struct{})}
	a := NewTrainUseCase(slow, WithTrainLock(mem, lease), WithTrainTimeout(time.Hour))
	b := NewTrainUseCase(&stubModel{}, WithTrainLock(mem, lease), WithTrainTimeout(time.Hour))

	_, err := a.Start(context.Background(), trainRequest(1, models.SignalBuy))
	require.NoError(t, err)

	// several leases pass while a is still training
	time.Sleep(5 * lease)
	_, err = b.Start(context.Background(), trainRequest(1, models.SignalBuy))
	assert.ErrorIs(t, err, hybrid.ErrTrainingInProgress)
	assert.Equal(t, models.TrainingRunning, a.Status().State)

	close(slow.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
	assert.Equal(t, models.TrainingCompleted, a.Status().State)

	_, err = b.Start(context.Background(), trainRequest(1, models.SignalBuy))
	require.NoError(t, err)
	require.NoError(t, b.Wait(ctx))
}

func TestTrainUseCase_LockLostFailsJob(t *testing.T) {
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()
	lease := 60 * time.Millisecond

	model := &stubModel{release: make(chan struct{})}
	uc := NewTrainUseCase(model, WithTrainLock(mem, lease), WithTrainTimeout(time.Hour))
	_, err := uc.Start(context.Background(), trainRequest(1, models.SignalBuy))
	require.NoError(t, err)

	// another owner takes the key over
	require.NoError(t, mem.Delete(context.Background(), trainLockKey))
	ok, err := mem.TryLock(context.Background(), trainLockKey, "intruder", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, uc.Wait(ctx))

	st := uc.Status()
	assert.Equal(t, models.TrainingFailed, st.State)
	assert.Contains(t, st.Error, ErrTrainingLockLost.Error())

	// the finished job leaves the new owner's lock alone
	ok, err = mem.TryLock(context.Background(), trainLockKey, "third", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrainUseCase_ShutdownCancelsJob(t *testing.T) {
	model := &stubModel{release: make(chan struct{})}
	uc := NewTrainUseCase(model)

	_, err := uc.Start(context.Background(), trainRequest(1, models.SignalBuy))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, uc.Shutdown(ctx))

	st := uc.Status()
	assert.Equal(t, models.TrainingFailed, st.State)
	assert.Contains(t, st.Error, context.Canceled.Error())
}

func TestTrainUseCase_HistoryLimit(t *testing.T) {
	model := &stubModel{history: []models.EpochMetrics{{Epoch: 1}, {Epoch: 2}, {Epoch: 3}}}
	uc := NewTrainUseCase(model)
	assert.Len(t, uc.History(0), 3)
	last := uc.History(2)
	require.Len(t, last, 2)
	assert.Equal(t, 2, last[0].Epoch)
	assert.Len(t, uc.History(10), 3)
}

func TestKafkaFeaturesHandler(t *testing.T) {
	pub := &stubPublisher{}
	model := &stubModel{pred: models.Prediction{Symbol: "AAPL", Signal: models.SignalBuy}}
	store := &stubStore{candles: candles("AAPL", 10), snapErr: domrepo.ErrNotFound}
	met := newStubMetrics()
	h := NewKafkaFeaturesHandler("finhybrid.features", NewPredictUseCase(model, store, pub, met, nil), met)
	assert.Equal(t, "finhybrid.features", h.Topic())

	msg, err := json.Marshal(map[string]interface{}{"symbol": "AAPL", "tf": "1m"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 60, store.gotN)
	require.Len(t, pub.events, 1)
	assert.Equal(t, models.SignalBuy, pub.events[0].Signal)
}

func TestKafkaFeaturesHandler_BadMessages(t *testing.T) {
	met := newStubMetrics()
	h := NewKafkaFeaturesHandler("t", NewPredictUseCase(&stubModel{}, nil, nil, met, nil), met)

	assert.ErrorIs(t, h.Handle(context.Background(), []byte("{not json")), pkgkafka.ErrPermanent)
	err := h.Handle(context.Background(), []byte(`{"tf":"1m"}`))
	assert.ErrorIs(t, err, ErrEmptyFeatureMessage)
	assert.ErrorIs(t, err, pkgkafka.ErrPermanent)
	assert.Equal(t, []string{"consumer_unmarshal", "consumer_invalid"}, met.errors())

	// no feature store can ever serve a symbol lookup
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL"}`)), pkgkafka.ErrPermanent)
}

func TestKafkaFeaturesHandler_RetryableErrors(t *testing.T) {
	msg := []byte(`{"symbol":"AAPL"}`)

	empty := &stubModel{err: hybrid.ErrEmptyInput}
	h := NewKafkaFeaturesHandler("t", NewPredictUseCase(empty, &stubStore{snapErr: domrepo.ErrNotFound}, nil, nil, nil), nil)
	err := h.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, hybrid.ErrEmptyInput)
	assert.ErrorIs(t, err, pkgkafka.ErrPermanent)

	down := &stubStore{err: errors.New("clickhouse unavailable")}
	h = NewKafkaFeaturesHandler("t", NewPredictUseCase(&stubModel{}, down, nil, nil, nil), nil)
	err = h.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, pkgkafka.ErrPermanent)
}
