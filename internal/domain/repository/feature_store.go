package repository

import (
	"context"
	"errors"

	"FinHybrid/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// FeatureStore provides read-only access to the raw inputs of feature engineering.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	GetMarketSnapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

// NormalizeTimeframe converts raw string to a valid timeframe, falling back to 1m.
func NormalizeTimeframe(s string) Timeframe {
	switch tf := Timeframe(s); tf {
	case TF1s, TF1m, TF5m:
		return tf
	default:
		return TF1m
	}
}

// ErrNotFound is returned when a store has no row for the requested key.
var ErrNotFound = errors.New("not found")
