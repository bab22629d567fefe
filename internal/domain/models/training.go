package models

import "time"

// EpochMetrics summarises one training epoch. Entries are appended to history and never changed.
type EpochMetrics struct {
	Epoch              int           `json:"epoch"`
	TotalLoss          float64       `json:"total_loss"`
	SpatialLoss        float64       `json:"spatial_loss"`
	TemporalLoss       float64       `json:"temporal_loss"`
	TrainAccuracy      float64       `json:"train_accuracy"`
	TrainLoss          float64       `json:"train_loss"`
	ValidationAccuracy float64       `json:"validation_accuracy"`
	ValidationLoss     float64       `json:"validation_loss"`
	SpatialAccuracy    float64       `json:"spatial_accuracy"`
	TemporalAccuracy   float64       `json:"temporal_accuracy"`
	LearningRate       float64       `json:"learning_rate"`
	Samples            int           `json:"samples"`
	Failed             int           `json:"failed"`
	Duration           time.Duration `json:"duration"`
}

type TrainingState string

const (
	TrainingIdle      TrainingState = "idle"
	TrainingRunning   TrainingState = "running"
	TrainingCompleted TrainingState = "completed"
	TrainingFailed    TrainingState = "failed"
)

// TrainingStatus describes the most recent training job.
type TrainingStatus struct {
	State      TrainingState `json:"state"`
	JobID      string        `json:"job_id,omitempty"`
	Samples    int           `json:"samples"`
	Epochs     int           `json:"epochs"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// OneHot encodes s as a label vector of the given width.
func OneHot(s Signal, classes int) []float64 {
	out := make([]float64, classes)
	if i := s.Index(); i >= 0 && i < classes {
		out[i] = 1
	}
	return out
}
