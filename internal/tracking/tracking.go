// Package tracking defines the experiment-tracking and model-registry model
// shared by the trainer, the registry CLI and the storage backends.
//
// A run is recorded once, after the model has been fitted and evaluated, as a
// single RunRecord. Backends either commit it atomically (the local bbolt
// store) or mark the run FAILED when a later step is rejected (MLflow).
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrModelNotFound    = errors.New("registered model not found")
	ErrVersionNotFound  = errors.New("model version not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrInvalidRecord    = errors.New("invalid run record")
)

type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// RunRecord is everything a training run reports, gathered before anything is
// written to the store.
type RunRecord struct {
	ExperimentName  string
	RunName         string
	StartTime       time.Time
	Params          map[string]string
	Metrics         map[string]float64
	Tags            map[string]string
	ArtifactPath    string
	Artifact        []byte
	RegisteredModel string
}

// Validate rejects records without metric values or a model artifact.
func (r RunRecord) Validate() error {
	if r.ExperimentName == "" {
		return fmt.Errorf("%w: experiment name is empty", ErrInvalidRecord)
	}
	if r.RegisteredModel == "" {
		return fmt.Errorf("%w: registered model name is empty", ErrInvalidRecord)
	}
	if r.ArtifactPath == "" || len(r.Artifact) == 0 {
		return fmt.Errorf("%w: model artifact is missing", ErrInvalidRecord)
	}
	if len(r.Metrics) == 0 {
		return fmt.Errorf("%w: no metrics", ErrInvalidRecord)
	}
	for k, v := range r.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: metric %s is %v", ErrInvalidRecord, k, v)
		}
	}
	return nil
}

// Run is a recorded training run.
type Run struct {
	RunID        string             `json:"run_id"`
	ExperimentID string             `json:"experiment_id"`
	RunName      string             `json:"run_name"`
	Status       RunStatus          `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	Params       map[string]string  `json:"params,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Tags         map[string]string  `json:"tags,omitempty"`
	ArtifactURI  string             `json:"artifact_uri"`
}

// ModelVersion is one registration of a model name. Versions start at 1 and
// the highest version is the latest.
type ModelVersion struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an experiment tracker with a model registry.
type Store interface {
	// Record creates a run from rec, stores its artifact and registers the
	// artifact as the next version of rec.RegisteredModel.
	Record(ctx context.Context, rec RunRecord) (Run, ModelVersion, error)

	GetRun(ctx context.Context, runID string) (Run, error)

	// LatestVersion returns the most recent registration of name.
	LatestVersion(ctx context.Context, name string) (ModelVersion, error)

	GetVersion(ctx context.Context, name string, version int) (ModelVersion, error)

	// ListVersions returns every version of name, newest first.
	ListVersions(ctx context.Context, name string) ([]ModelVersion, error)

	// Artifact returns the bytes stored for a run under path.
	Artifact(ctx context.Context, runID, path string) ([]byte, error)

	// RunURL is a human-facing link to the run, or "" if the backend has none.
	RunURL(run Run) string

	Close() error
}

// RunsURI is the artifact location of a run-relative path.
func RunsURI(runID, path string) string {
	return fmt.Sprintf("runs:/%s/%s", runID, path)
}

// ParseRunsURI splits a runs:/<run id>/<path> URI.
func ParseRunsURI(uri string) (runID, path string, err error) {
	rest, ok := strings.CutPrefix(uri, "runs:/")
	if !ok {
		return "", "", fmt.Errorf("not a runs:/ URI: %q", uri)
	}
	runID, path, _ = strings.Cut(rest, "/")
	if runID == "" || path == "" {
		return "", "", fmt.Errorf("runs:/ URI %q needs a run id and a path", uri)
	}
	return runID, path, nil
}
