// Package ml provides the long-trip classifier: feature derivation, the
// train/test split, an L2-regularized logistic regression, its JSON artifact
// format, and the HTTP model server that serves a loaded artifact.
//
// A fitted model is immutable, so one instance can serve concurrent requests
// without locking.
package ml

// PredictorInterface defines the interface for models used by the evaluator and the server.
type PredictorInterface interface {
	// Predict returns the class label, 0 or 1, for one feature vector.
	Predict(features []float64) (int, error)

	// PredictProba returns the probability of the positive class.
	PredictProba(features []float64) (float64, error)
}

// MetricsInterface defines metrics methods needed by the model server
type MetricsInterface interface {
	MLPredictionsInc(label int)
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
}

var _ PredictorInterface = (*LogisticModel)(nil)
