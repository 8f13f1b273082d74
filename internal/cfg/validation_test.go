package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		ParamsFile:      "params.yaml",
		DataPath:        "data/raw/train.csv",
		TrackingBackend: "local",
		TrackingURI:     "http://localhost:5001",
		TrackingPath:    "mlruns",
		TrackingTimeout: 30 * time.Second,
		ExperimentName:  "Taxi_Fare_Prediction_CT",
		RegisteredModel: "Production_CT_Model",
		ModelPath:       "model/ml_service.pkl",
		ServerPort:      9699,
		RepoPath:        ".",
		LogLevel:        "info",
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"empty tracking path", func(s *Settings) { s.TrackingPath = "" }},
		{"unknown backend", func(s *Settings) { s.TrackingBackend = "wandb" }},
		{"mlflow without host", func(s *Settings) {
			s.TrackingBackend = "mlflow"
			s.TrackingURI = "http://"
		}},
		{"timeout too short", func(s *Settings) { s.TrackingTimeout = 10 * time.Millisecond }},
		{"timeout too long", func(s *Settings) { s.TrackingTimeout = time.Hour }},
		{"port too high", func(s *Settings) { s.ServerPort = 70000 }},
		{"empty experiment", func(s *Settings) { s.ExperimentName = "" }},
		{"empty registered model", func(s *Settings) { s.RegisteredModel = "" }},
		{"empty data path", func(s *Settings) { s.DataPath = "" }},
		{"empty model path", func(s *Settings) { s.ModelPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)
			if err := validateSettings(settings); err == nil {
				t.Errorf("expected %s to fail validation", tt.name)
			}
		})
	}
}

func TestValidateSettings_MLflowBackend(t *testing.T) {
	settings := createValidSettings()
	settings.TrackingBackend = "mlflow"
	settings.TrackingPath = ""

	if err := validateSettings(settings); err != nil {
		t.Errorf("mlflow backend should not need a tracking path, got: %v", err)
	}
}
