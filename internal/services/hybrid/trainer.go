package hybrid

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinHybrid/internal/domain/models"
	"FinHybrid/internal/services/numeric"
	applogger "FinHybrid/pkg/logger"
)

const (
	minConfidence = 0.001
	spatialShare  = 0.4
	temporalShare = 0.6
)

// History returns a copy of the recorded epoch metrics.
func (m *Model) History() []models.EpochMetrics {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	return append([]models.EpochMetrics(nil), m.history...)
}

// Train runs cfg.Epochs passes over data. labels are one-hot (or score) vectors in sell, hold, buy order.
// The tail ValidationSplit fraction of samples is evaluated without training semantics. Failed
// samples are logged and skipped. Fusion weights change only when cfg.UpdateWeights is set.
func (m *Model) Train(ctx context.Context, data [][]models.FeatureRecord, labels [][]float64) error {
	if len(data) != len(labels) {
		return fmt.Errorf("%w: %d samples, %d labels", ErrLabelMismatch, len(data), len(labels))
	}
	if len(data) == 0 {
		return ErrEmptyInput
	}
	if !m.training.CompareAndSwap(false, true) {
		return ErrTrainingInProgress
	}
	defer m.training.Store(false)

	trainN := splitIndex(len(data), m.cfg.ValidationSplit)
	if m.l != nil {
		m.l.Info("hybrid training started",
			applogger.Int("samples", len(data)),
			applogger.Int("train", trainN),
			applogger.Int("validation", len(data)-trainN),
			applogger.Int("epochs", m.cfg.Epochs),
			applogger.Bool("update_weights", m.cfg.UpdateWeights),
		)
	}

	for epoch := 1; epoch <= m.cfg.Epochs; epoch++ {
		em, err := m.runEpoch(ctx, epoch, data, labels, trainN)
		if err != nil {
			return fmt.Errorf("training interrupted at epoch %d: %w", epoch, err)
		}
		m.histMu.Lock()
		m.history = append(m.history, em)
		m.histMu.Unlock()

		if m.metrics != nil {
			m.metrics.RecordEpoch(em)
		}
		if m.l != nil {
			m.l.Info("hybrid epoch completed",
				applogger.Int("epoch", em.Epoch),
				applogger.Float("total_loss", em.TotalLoss),
				applogger.Float("train_accuracy", em.TrainAccuracy),
				applogger.Float("validation_accuracy", em.ValidationAccuracy),
				applogger.Int("failed", em.Failed),
				applogger.Duration("duration_ms", em.Duration),
			)
		}
	}
	return nil
}

// splitIndex returns the number of leading samples used for training. At least one sample always trains.
func splitIndex(n int, split float64) int {
	val := int(math.Floor(float64(n) * split))
	if val >= n {
		val = n - 1
	}
	return n - val
}

type tally struct {
	samples, failed             int
	correct                     int
	spatialCorrect, tempCorrect int
	loss                        float64
}

func (t tally) rate(hits int) float64 {
	if t.samples == 0 {
		return 0
	}
	return float64(hits) / float64(t.samples)
}

func (t tally) meanLoss() float64 {
	if t.samples == 0 {
		return 0
	}
	return t.loss / float64(t.samples)
}

func (m *Model) runEpoch(ctx context.Context, epoch int, data [][]models.FeatureRecord, labels [][]float64, trainN int) (models.EpochMetrics, error) {
	start := time.Now()
	var tr, val tally

	for i := 0; i < len(data); i++ {
		if err := ctx.Err(); err != nil {
			return models.EpochMetrics{}, err
		}
		validation := i >= trainN
		t := &tr
		if validation {
			t = &val
		}

		target := numeric.ArgMax(labels[i])
		if target < 0 || target >= m.cfg.OutputClasses || len(data[i]) == 0 {
			t.failed++
			if m.l != nil {
				m.l.Warn("hybrid training sample skipped",
					applogger.Int("epoch", epoch),
					applogger.Int("sample", i),
					applogger.String("reason", "invalid sample or label"),
				)
			}
			continue
		}

		pred, trc, err := m.predict(ctx, data[i], !validation)
		if err != nil {
			t.failed++
			if m.l != nil {
				m.l.Warn("hybrid training sample failed",
					applogger.Int("epoch", epoch),
					applogger.Int("sample", i),
					applogger.Error(err),
				)
			}
			continue
		}

		t.samples++
		t.loss += -math.Log(math.Max(minConfidence, pred.Confidence))
		if pred.Signal.Index() == target {
			t.correct++
		}
		if validation {
			continue
		}
		if m.spatialClass(trc.spatial) == target {
			t.spatialCorrect++
		}
		if trc.temporal.Signal.Index() == target {
			t.tempCorrect++
		}
		if m.cfg.UpdateWeights {
			m.mu.Lock()
			m.fusion.Step(trc.combined, target, m.cfg.LearningRate, m.cfg.L1Reg, m.cfg.L2Reg)
			m.mu.Unlock()
		}
	}

	trainLoss := tr.meanLoss()
	return models.EpochMetrics{
		Epoch:              epoch,
		TotalLoss:          trainLoss,
		SpatialLoss:        spatialShare * trainLoss,
		TemporalLoss:       temporalShare * trainLoss,
		TrainAccuracy:      tr.rate(tr.correct),
		TrainLoss:          trainLoss,
		ValidationAccuracy: val.rate(val.correct),
		ValidationLoss:     val.meanLoss(),
		SpatialAccuracy:    tr.rate(tr.spatialCorrect),
		TemporalAccuracy:   tr.rate(tr.tempCorrect),
		LearningRate:       m.cfg.LearningRate,
		Samples:            tr.samples + val.samples,
		Failed:             tr.failed + val.failed,
		Duration:           time.Since(start),
	}, nil
}

// spatialClass is the class favoured by the spatial features alone.
func (m *Model) spatialClass(spatial []float64) int {
	m.mu.RLock()
	logits := m.fusion.Forward(m.fusion.SpatialOnly(spatial))
	m.mu.RUnlock()
	return numeric.ArgMax(logits)
}
