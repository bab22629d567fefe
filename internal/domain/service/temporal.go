package service

import (
	"context"

	"FinHybrid/internal/domain/models"
)

// TemporalAdapter fronts an external sequence model.
type TemporalAdapter interface {
	PredictSequence(ctx context.Context, features []models.FeatureRecord) (models.TemporalOutput, error)
}
