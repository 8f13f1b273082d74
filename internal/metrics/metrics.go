// Package metrics provides Prometheus metrics collection for the trainer and
// the prediction service.
//
// Serving metrics are exposed on the model server's /metrics endpoint; training
// metrics are registered by the trainer and logged at the end of a run.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the CT demo.
type Metrics struct {
	// Serving metrics
	MLPredictions      *prometheus.CounterVec // Predictions served, by predicted class
	MLFailures         prometheus.Counter     // Rejected or failed prediction requests
	MLLatency          prometheus.Histogram   // End-to-end /predict latency in seconds
	MLModelAge         prometheus.Gauge       // Age of the loaded model in seconds
	MLPredictionScores prometheus.Histogram   // Distribution of positive-class probabilities

	// Training metrics
	TrainingRuns     *prometheus.CounterVec // Training runs, by outcome
	TrainingAccuracy prometheus.Gauge       // Test accuracy of the last recorded run
	TrainingDuration prometheus.Histogram   // Wall time of the fit+evaluate step
	TrainingRows     prometheus.Gauge       // Rows loaded for the last run
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of predictions served",
		}, []string{"class"}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of rejected or failed prediction requests",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of training runs by outcome",
		}, []string{"outcome"}),
		TrainingAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_test_accuracy",
			Help: "Test accuracy of the last recorded training run",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_fit_duration_seconds",
			Help:    "Duration of model fitting and evaluation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		TrainingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_rows",
			Help: "Number of dataset rows loaded for the last training run",
		}),
	}
}

// ClassLabel formats a predicted class for the class label.
func ClassLabel(class int) string {
	return strconv.Itoa(class)
}

// Snapshot flattens the metrics gathered from g into name -> value, summing
// over label values. Histograms report their sample sum. The trainer logs it
// before exiting since nothing scrapes a one-shot process.
func Snapshot(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += m.GetHistogram().GetSampleSum()
			}
		}
		out[mf.GetName()] = total
	}
	return out, nil
}
