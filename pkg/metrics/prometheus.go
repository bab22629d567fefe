package metrics

import (
	"FinHybrid/internal/domain/models"
	"FinHybrid/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ repository.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	dataQuality   *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	epochLoss     *prometheus.GaugeVec
	epochAccuracy *prometheus.GaugeVec
	epochsTotal   prometheus.Counter
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhybrid_predictions_total",
				Help: "Total number of predictions by symbol and signal",
			},
			[]string{"symbol", "signal"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finhybrid_prediction_confidence",
				Help:    "Distribution of prediction confidence",
				Buckets: []float64{0.34, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
			},
			[]string{"signal"},
		),
		dataQuality: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finhybrid_data_quality",
				Help: "Data quality score of the last prediction input per symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhybrid_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finhybrid_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		epochLoss: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finhybrid_training_loss",
				Help: "Loss of the last completed training epoch",
			},
			[]string{"kind"},
		),
		epochAccuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finhybrid_training_accuracy",
				Help: "Accuracy of the last completed training epoch",
			},
			[]string{"kind"},
		),
		epochsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "finhybrid_training_epochs_total",
				Help: "Total number of completed training epochs",
			},
		),
	}
}

// RecordPrediction counts a prediction and observes its confidence.
func (r *Recorder) RecordPrediction(symbol string, signal models.Signal, confidence float64) {
	r.predictions.WithLabelValues(symbol, string(signal)).Inc()
	r.confidence.WithLabelValues(string(signal)).Observe(confidence)
}

// RecordDataQuality records the data quality score for a symbol.
func (r *Recorder) RecordDataQuality(symbol string, score float64) {
	r.dataQuality.WithLabelValues(symbol).Set(score)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordEpoch exports the losses and accuracies of a finished epoch.
func (r *Recorder) RecordEpoch(m models.EpochMetrics) {
	r.epochsTotal.Inc()
	r.epochLoss.WithLabelValues("total").Set(m.TotalLoss)
	r.epochLoss.WithLabelValues("spatial").Set(m.SpatialLoss)
	r.epochLoss.WithLabelValues("temporal").Set(m.TemporalLoss)
	r.epochLoss.WithLabelValues("validation").Set(m.ValidationLoss)
	r.epochAccuracy.WithLabelValues("train").Set(m.TrainAccuracy)
	r.epochAccuracy.WithLabelValues("validation").Set(m.ValidationAccuracy)
	r.epochAccuracy.WithLabelValues("spatial").Set(m.SpatialAccuracy)
	r.epochAccuracy.WithLabelValues("temporal").Set(m.TemporalAccuracy)
}
