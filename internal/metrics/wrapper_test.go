package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_Predictions(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc(1)
	wrapper.MLPredictionsInc(1)
	wrapper.MLPredictionsInc(0)

	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("1")); v != 2 {
		t.Errorf("Expected 2 long-trip predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("0")); v != 1 {
		t.Errorf("Expected 1 short-trip prediction, got %f", v)
	}

	wrapper.MLFailuresInc()
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected failure counter 1, got %f", v)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLModelAgeSet(3600)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600 {
		t.Errorf("Expected model age 3600, got %f", v)
	}

	wrapper.TrainingAccuracySet(0.9875)
	if v := testutil.ToFloat64(metrics.TrainingAccuracy); v != 0.9875 {
		t.Errorf("Expected accuracy 0.9875, got %f", v)
	}

	wrapper.TrainingRowsSet(10000)
	if v := testutil.ToFloat64(metrics.TrainingRows); v != 10000 {
		t.Errorf("Expected rows 10000, got %f", v)
	}
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLLatencyObserve(0.002)
	wrapper.MLPredictionScoresObserve(0.7)
	wrapper.TrainingDurationObserve(1.5)

	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.MLPredictionScores); n != 1 {
		t.Errorf("Expected 1 score series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.TrainingDuration); n != 1 {
		t.Errorf("Expected 1 duration series, got %d", n)
	}
}

func TestMetricsWrapper_TrainingRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.TrainingRunInc(OutcomeRecorded)
	wrapper.TrainingRunInc(OutcomeFailed)
	wrapper.TrainingRunInc(OutcomeFailed)

	if v := testutil.ToFloat64(metrics.TrainingRuns.WithLabelValues(OutcomeFailed)); v != 2 {
		t.Errorf("Expected 2 failed runs, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.TrainingRuns.WithLabelValues(OutcomeRecorded)); v != 1 {
		t.Errorf("Expected 1 recorded run, got %f", v)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic when registering metrics twice on one registry")
		}
	}()
	NewWithRegistry(registry)
}

func TestSnapshot(t *testing.T) {
	registry := prometheus.NewRegistry()
	wrapper := NewWrapper(NewWithRegistry(registry))

	wrapper.TrainingRunInc(OutcomeRecorded)
	wrapper.TrainingRunInc(OutcomeFailed)
	wrapper.TrainingAccuracySet(0.97)
	wrapper.TrainingDurationObserve(0.5)
	wrapper.TrainingDurationObserve(0.25)

	snap, err := Snapshot(registry)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap["training_runs_total"] != 2 {
		t.Errorf("Expected 2 runs, got %f", snap["training_runs_total"])
	}
	if snap["training_test_accuracy"] != 0.97 {
		t.Errorf("Expected accuracy 0.97, got %f", snap["training_test_accuracy"])
	}
	if snap["training_fit_duration_seconds"] != 0.75 {
		t.Errorf("Expected duration sum 0.75, got %f", snap["training_fit_duration_seconds"])
	}
}
