package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/services/hybrid"
	pkgkafka "FinHybrid/pkg/kafka"
)

// ErrEmptyFeatureMessage is returned for a message that names no symbol and carries no records.
var ErrEmptyFeatureMessage = errors.New("feature message has neither symbol nor records")

// KafkaFeaturesHandler turns feature-window messages into published signal events.
type KafkaFeaturesHandler struct {
	topic   string
	predict *PredictUseCase
	metrics domrepo.Metrics
}

func NewKafkaFeaturesHandler(topic string, predict *PredictUseCase, metrics domrepo.Metrics) *KafkaFeaturesHandler {
	return &KafkaFeaturesHandler{topic: topic, predict: predict, metrics: metrics}
}

func (h *KafkaFeaturesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, n, tf, records}. Results are always published.
func (h *KafkaFeaturesHandler) Handle(ctx context.Context, b []byte) error {
	var req models.PredictRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode feature message: %w", err))
	}
	if req.Symbol == "" && len(req.Records) == 0 {
		h.recordError("consumer_invalid")
		return pkgkafka.Permanent(ErrEmptyFeatureMessage)
	}
	if req.N <= 0 {
		req.N = 60
	}
	req.Publish = true

	start := time.Now()
	_, err := h.predict.Execute(ctx, req)
	if h.metrics != nil {
		h.metrics.RecordLatency("consumer_predict_seconds", time.Since(start).Seconds())
	}
	if errors.Is(err, hybrid.ErrEmptyInput) || errors.Is(err, ErrNoFeatureStore) {
		return pkgkafka.Permanent(err)
	}
	return err
}

func (h *KafkaFeaturesHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaFeaturesHandler)(nil)
