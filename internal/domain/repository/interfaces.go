package repository

import (
	"context"

	"FinHybrid/internal/domain/models"
)

// SignalPublisher emits prediction events to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

type Metrics interface {
	RecordPrediction(symbol string, signal models.Signal, confidence float64)
	RecordDataQuality(symbol string, score float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordEpoch(m models.EpochMetrics)
}
