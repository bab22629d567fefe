// Package hybrid implements the spatial-temporal prediction engine: a convolutional stage over
// encoded feature channels, chart-pattern matching, fusion with an external sequence model and
// a diagnostic training loop.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"FinHybrid/internal/domain/models"
	"FinHybrid/internal/domain/repository"
	"FinHybrid/internal/domain/service"
	"FinHybrid/internal/services/numeric"
	applogger "FinHybrid/pkg/logger"
)

var (
	ErrEmptyInput         = errors.New("empty input: at least one feature record is required")
	ErrInvalidConfig      = errors.New("invalid hybrid config")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrLabelMismatch      = errors.New("training data and labels differ in length")
)

type Mode string

const (
	ModeInference Mode = "inference"
	ModeTraining  Mode = "training"
)

// lockedRand serialises access to a *rand.Rand shared by concurrent predictions.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Model is the hybrid orchestrator. It is safe for concurrent use.
type Model struct {
	cfg      Config
	temporal service.TemporalAdapter
	conv     *ConvStage
	patterns *PatternRecognizer

	mu     sync.RWMutex // guards fusion weights
	fusion *FusionLayer

	rng      *lockedRand
	training atomic.Bool

	histMu  sync.Mutex
	history []models.EpochMetrics

	spatialDim  int
	temporalDim int

	l       *applogger.Logger
	metrics repository.Metrics
}

type Option func(*Model)

func WithLogger(l *applogger.Logger) Option { return func(m *Model) { m.l = l } }

func WithMetrics(r repository.Metrics) Option { return func(m *Model) { m.metrics = r } }

// WithTemplates replaces the built-in pattern table.
func WithTemplates(t []PatternTemplate) Option {
	return func(m *Model) { m.patterns = NewPatternRecognizer(t) }
}

// NewModel validates cfg, initialises filter banks and fusion weights from cfg.Seed and binds the temporal adapter.
func NewModel(cfg Config, temporal service.TemporalAdapter, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if temporal == nil {
		return nil, fmt.Errorf("%w: temporal adapter is required", ErrInvalidConfig)
	}
	cfg = cfg.Clone()
	initRand := rand.New(rand.NewSource(cfg.Seed))

	m := &Model{
		cfg:      cfg,
		temporal: temporal,
		conv:     NewConvStage(cfg.CNN, initRand),
		patterns: NewPatternRecognizer(DefaultTemplates()),
		rng:      &lockedRand{r: rand.New(rand.NewSource(cfg.Seed + 1))},
	}
	outLen := m.conv.OutputLength(channelLength(cfg.SequenceLength))
	if outLen < 1 {
		return nil, fmt.Errorf("%w: sequence length %d is too short for %d conv layers",
			ErrInvalidConfig, cfg.SequenceLength, m.conv.Layers())
	}
	m.spatialDim = m.conv.OutputChannels() * outLen
	m.temporalDim = temporalFeatureCount + cfg.LSTM.HiddenSize
	m.fusion = newFusionLayer(cfg.OutputClasses, m.spatialDim, m.temporalDim, initRand)

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns a copy of the construction config.
func (m *Model) Config() Config { return m.cfg.Clone() }

func (m *Model) Mode() Mode {
	if m.training.Load() {
		return ModeTraining
	}
	return ModeInference
}

// Dimensions reports the spatial and temporal widths of the fusion input.
func (m *Model) Dimensions() (spatial, temporal int) { return m.spatialDim, m.temporalDim }

func (m *Model) FilterBanks() []FilterBank { return m.conv.FilterBanks() }

func (m *Model) Templates() []PatternTemplate { return m.patterns.Templates() }

func (m *Model) FusionWeights() FusionWeights {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fusion.Weights()
}

// SetFusionWeights replaces the fusion weights. The shape must match the current one.
func (m *Model) SetFusionWeights(w FusionWeights) error {
	classes, width := m.cfg.OutputClasses, m.spatialDim+m.temporalDim
	if len(w.Weights) != classes || len(w.Bias) != classes {
		return fmt.Errorf("%w: fusion weights need %d classes", ErrInvalidConfig, classes)
	}
	for i, row := range w.Weights {
		if len(row) != width {
			return fmt.Errorf("%w: fusion row %d has %d entries, want %d", ErrInvalidConfig, i, len(row), width)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fusion.w = w.Clone()
	return nil
}

// trace carries intermediate vectors the training loop needs.
type trace struct {
	spatial  []float64
	combined []float64
	temporal models.TemporalOutput
}

// Predict runs one inference pass over features, ordered oldest first.
func (m *Model) Predict(ctx context.Context, features []models.FeatureRecord) (models.Prediction, error) {
	if len(features) == 0 {
		return models.Prediction{}, ErrEmptyInput
	}
	start := time.Now()
	p, _, err := m.predict(ctx, features, m.training.Load())
	if m.metrics != nil {
		m.metrics.RecordLatency("hybrid_predict", time.Since(start).Seconds())
	}
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordError("hybrid_predict")
		}
		if m.l != nil {
			m.l.Error("hybrid prediction failed",
				applogger.Int("records", len(features)),
				applogger.Error(err),
			)
		}
		return models.Prediction{}, err
	}
	return p, nil
}

func (m *Model) predict(ctx context.Context, features []models.FeatureRecord, training bool) (pred models.Prediction, tr trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hybrid prediction failed: panic: %v", r)
		}
	}()
	start := time.Now()

	channels := encodeChannels(features, m.cfg.SequenceLength, m.cfg.CNN.InputChannels)
	pooled, activations := m.conv.Forward(channels, training, m.rng)
	spatial := flatten(pooled)
	patterns := m.patterns.Detect(pooled)

	tout, err := m.temporal.PredictSequence(ctx, features)
	if err != nil {
		return pred, tr, fmt.Errorf("hybrid prediction failed: %w", err)
	}
	temporal := temporalVector(tout, m.cfg.LSTM.HiddenSize)

	m.mu.RLock()
	combined := m.fusion.Combine(spatial, temporal)
	logits := m.fusion.Forward(combined)
	m.mu.RUnlock()

	probs := numeric.Softmax(logits)
	idx := numeric.ArgMax(probs)
	signal := models.SignalFromIndex(idx)
	confidence := probs[idx]

	mode := ModeInference
	if training {
		mode = ModeTraining
	}
	last := features[len(features)-1]
	pred = models.Prediction{
		Symbol:            last.Symbol,
		Signal:            signal,
		Confidence:        confidence,
		Probabilities:     models.ProbabilitiesFromSlice(probs),
		Patterns:          patterns,
		SpatialFeatures:   spatial,
		ActivationMaps:    activations,
		FusedFeatures:     combined,
		FeatureImportance: featureImportance(combined),
		Correlation:       correlation(spatial, temporal),
		PriceTarget:       priceTarget(last, signal, confidence),
		Uncertainty:       combineUncertainty(finite(spatialUncertainty(pooled)), finite(tout.Uncertainty.Total)),
		Temporal: models.TemporalDiagnostics{
			TrendStrength:      finite(tout.TrendStrength),
			VolatilityForecast: finite(tout.VolatilityForecast),
			Momentum:           finite(tout.MomentumScore),
			AttentionWeights:   finiteAll(tout.AttentionWeights),
		},
		Metadata: models.PredictionMetadata{
			DataQuality: dataQuality(features),
			ConvLayers:  m.conv.Layers(),
			RecordCount: len(features),
			Mode:        string(mode),
		},
	}
	pred.Metadata.ProcessingTime = time.Since(start)

	if m.l != nil {
		m.l.Debug("hybrid prediction",
			applogger.String("symbol", last.Symbol),
			applogger.String("signal", string(signal)),
			applogger.Float("confidence", confidence),
			applogger.Int("patterns", len(patterns)),
			applogger.Duration("duration_ms", pred.Metadata.ProcessingTime),
		)
	}
	return pred, trace{spatial: spatial, combined: combined, temporal: tout}, nil
}
