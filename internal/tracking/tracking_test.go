package tracking

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRecord() RunRecord {
	return RunRecord{
		ExperimentName:  "exp",
		Metrics:         map[string]float64{"test_accuracy": 0.9},
		ArtifactPath:    "model/model.json",
		Artifact:        []byte(`{}`),
		RegisteredModel: "Production_CT_Model",
	}
}

func TestRunRecord_Validate(t *testing.T) {
	assert.NoError(t, validRecord().Validate())

	tests := []struct {
		name   string
		mutate func(r *RunRecord)
	}{
		{"no experiment", func(r *RunRecord) { r.ExperimentName = "" }},
		{"no registered model", func(r *RunRecord) { r.RegisteredModel = "" }},
		{"no artifact bytes", func(r *RunRecord) { r.Artifact = nil }},
		{"no artifact path", func(r *RunRecord) { r.ArtifactPath = "" }},
		{"no metrics", func(r *RunRecord) { r.Metrics = nil }},
		{"nan metric", func(r *RunRecord) { r.Metrics["test_accuracy"] = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			err := rec.Validate()
			assert.True(t, errors.Is(err, ErrInvalidRecord), "got %v", err)
		})
	}
}

func TestRunsURI(t *testing.T) {
	assert.Equal(t, "runs:/abc/model/model.json", RunsURI("abc", "model/model.json"))
}

func TestParseRunsURI(t *testing.T) {
	runID, path, err := ParseRunsURI("runs:/abc/model/model.json")
	assert.NoError(t, err)
	assert.Equal(t, "abc", runID)
	assert.Equal(t, "model/model.json", path)

	for _, bad := range []string{"s3://bucket/x", "runs:/abc", "runs://model.json", ""} {
		_, _, err := ParseRunsURI(bad)
		assert.Error(t, err, bad)
	}
}
