package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/services/features"
	applogger "FinHybrid/pkg/logger"
)

// ErrNoFeatureStore is returned when a prediction names a symbol but no store is configured.
var ErrNoFeatureStore = errors.New("feature store not configured")

// Predictor is the inference surface of the hybrid model.
type Predictor interface {
	Predict(ctx context.Context, features []models.FeatureRecord) (models.Prediction, error)
}

// PredictUseCase loads or accepts a feature window, runs the model and fans the result out.
type PredictUseCase struct {
	model   Predictor
	store   domrepo.FeatureStore
	pub     domrepo.SignalPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

func NewPredictUseCase(
	model Predictor,
	store domrepo.FeatureStore,
	pub domrepo.SignalPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *PredictUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &PredictUseCase{model: model, store: store, pub: pub, metrics: metrics, l: l, now: time.Now}
}

// Execute serves one PredictRequest. Inline records take precedence over a store lookup.
func (u *PredictUseCase) Execute(ctx context.Context, req models.PredictRequest) (models.Prediction, error) {
	start := time.Now()
	records := req.Records
	if len(records) == 0 {
		loaded, err := u.LoadRecords(ctx, req.Symbol, req.N, domrepo.NormalizeTimeframe(req.TF))
		if err != nil {
			u.recordError("predict_load")
			return models.Prediction{}, err
		}
		records = loaded
	} else if req.Symbol != "" {
		records = withSymbol(records, req.Symbol)
	}

	pred, err := u.model.Predict(ctx, records)
	if u.metrics != nil {
		u.metrics.RecordLatency("predict_usecase_seconds", time.Since(start).Seconds())
	}
	if err != nil {
		u.recordError("predict")
		return models.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if pred.Symbol == "" {
		pred.Symbol = req.Symbol
	}

	if u.metrics != nil {
		u.metrics.RecordPrediction(pred.Symbol, pred.Signal, pred.Confidence)
		u.metrics.RecordDataQuality(pred.Symbol, pred.Metadata.DataQuality)
	}

	if req.Publish && u.pub != nil {
		if err := u.pub.PublishSignal(ctx, models.NewSignalEvent(pred, u.now())); err != nil {
			// the prediction itself succeeded
			u.recordError("publish_signal")
			u.l.Warn("signal publish failed", applogger.String("symbol", pred.Symbol), applogger.Error(err))
		}
	}
	return pred, nil
}

// LoadRecords reads the latest n candles and the market snapshot for symbol and builds feature records.
// A missing snapshot yields zero market features.
func (u *PredictUseCase) LoadRecords(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.FeatureRecord, error) {
	if u.store == nil {
		return nil, ErrNoFeatureStore
	}
	candles, err := u.store.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	snap, err := u.store.GetMarketSnapshot(ctx, symbol)
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		u.l.Debug("no market snapshot", applogger.String("symbol", symbol))
		snap = models.MarketSnapshot{Symbol: symbol}
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return features.BuildRecords(candles, snap), nil
}

func (u *PredictUseCase) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.RecordError(kind)
	}
}

func withSymbol(records []models.FeatureRecord, symbol string) []models.FeatureRecord {
	out := make([]models.FeatureRecord, len(records))
	for i, r := range records {
		if r.Symbol == "" {
			r.Symbol = symbol
		}
		out[i] = r
	}
	return out
}
