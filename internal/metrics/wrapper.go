package metrics

// MetricsWrapper adapts Metrics to the small interfaces the model server and
// the training pipeline depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc(label int) {
	w.m.MLPredictions.WithLabelValues(ClassLabel(label)).Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

// Training outcomes
const (
	OutcomeRecorded = "recorded"
	OutcomeFailed   = "failed"
)

func (w *MetricsWrapper) TrainingRunInc(outcome string) {
	w.m.TrainingRuns.WithLabelValues(outcome).Inc()
}

func (w *MetricsWrapper) TrainingAccuracySet(v float64) {
	w.m.TrainingAccuracy.Set(v)
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) TrainingRowsSet(v float64) {
	w.m.TrainingRows.Set(v)
}
