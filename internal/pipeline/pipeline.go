// Package pipeline runs one continuous-training cycle: load the tracked
// dataset, derive the long-trip label, split, fit, evaluate, and record the
// run together with its registered model.
//
// Nothing reaches the tracking store unless fitting and evaluation succeed,
// and the store records the run, artifact and registry version as one unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/common"
	"taxi-ct/internal/metrics"
	"taxi-ct/internal/ml"
	"taxi-ct/internal/tracking"
	"taxi-ct/internal/trips"
	"taxi-ct/internal/vcs"

	"github.com/rs/zerolog/log"
)

// Failure kinds. Every error returned by Run wraps exactly one of them.
var (
	ErrConfig   = errors.New("configuration error")
	ErrData     = errors.New("data retrieval error")
	ErrTraining = errors.New("training error")
	ErrTracking = errors.New("tracking error")
)

// DatasetLoader makes the tracked training table available.
type DatasetLoader interface {
	Load(ctx context.Context, path string) ([]trips.Record, error)
}

// MetricsInterface is the subset of training metrics the pipeline reports.
type MetricsInterface interface {
	TrainingRunInc(outcome string)
	TrainingAccuracySet(v float64)
	TrainingDurationObserve(seconds float64)
	TrainingRowsSet(v float64)
}

type Config struct {
	Params          cfg.Params
	DataPath        string
	RepoPath        string
	ExperimentName  string
	RegisteredModel string
}

// ConfigFromSettings loads the hyperparameters named by settings. A missing
// parameter file is an ErrConfig.
func ConfigFromSettings(settings cfg.Settings) (Config, error) {
	params, err := cfg.LoadParams(settings.ParamsFile)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return Config{
		Params:          params,
		DataPath:        settings.DataPath,
		RepoPath:        settings.RepoPath,
		ExperimentName:  settings.ExperimentName,
		RegisteredModel: settings.RegisteredModel,
	}, nil
}

type Deps struct {
	Dataset DatasetLoader
	Store   tracking.Store
	// Revision returns the data commit hash; defaults to vcs.Revision.
	Revision func(repoPath string) (string, error)
	Metrics  MetricsInterface
}

// Result summarizes a recorded run.
type Result struct {
	RunID        string
	ExperimentID string
	RunURL       string
	Accuracy     float64
	Version      tracking.ModelVersion
	Revision     string
	TrainRows    int
	TestRows     int
	Model        *ml.LogisticModel
}

// Run executes the training cycle.
func Run(ctx context.Context, c Config, deps Deps) (res Result, err error) {
	start := time.Now()
	defer func() {
		if deps.Metrics == nil {
			return
		}
		if err != nil {
			deps.Metrics.TrainingRunInc(metrics.OutcomeFailed)
			return
		}
		deps.Metrics.TrainingRunInc(metrics.OutcomeRecorded)
		deps.Metrics.TrainingAccuracySet(res.Accuracy)
		deps.Metrics.TrainingDurationObserve(time.Since(start).Seconds())
	}()

	if err := c.Params.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if deps.Dataset == nil || deps.Store == nil {
		return Result{}, fmt.Errorf("%w: dataset and tracking store are required", ErrConfig)
	}

	log.Info().Str("path", c.DataPath).Msg("Retrieving tracked dataset")
	records, err := deps.Dataset.Load(ctx, c.DataPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrData, err)
	}
	if deps.Metrics != nil {
		deps.Metrics.TrainingRowsSet(float64(len(records)))
	}

	train, test, err := ml.Split(ml.Examples(records), c.Params.TestSize, c.Params.RandomState)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrData, err)
	}
	log.Info().Int("train_rows", len(train)).Int("test_rows", len(test)).Msg("Dataset split")

	log.Info().Float64("C", c.Params.C).Msg("Starting model training")
	model, err := ml.FitLogistic(train, ml.FitOptions{C: c.Params.C, RandomState: c.Params.RandomState})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	accuracy, err := ml.Accuracy(model, test)
	if err != nil {
		return Result{}, fmt.Errorf("%w: evaluate: %w", ErrTraining, err)
	}

	artifact, err := ml.MarshalModel(model)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	revision := dataRevision(c.RepoPath, deps.Revision)

	run, version, err := deps.Store.Record(ctx, tracking.RunRecord{
		ExperimentName: c.ExperimentName,
		RunName:        common.RunName,
		StartTime:      start,
		Params: map[string]string{
			common.ParamC:        formatFloat(c.Params.C),
			common.ParamTestSize: formatFloat(c.Params.TestSize),
		},
		Metrics:         map[string]float64{common.MetricTestAccuracy: accuracy},
		Tags:            map[string]string{common.TagDataCommitHash: revision},
		ArtifactPath:    common.ModelArtifactPath,
		Artifact:        artifact,
		RegisteredModel: c.RegisteredModel,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTracking, err)
	}

	log.Info().
		Str("run_id", run.RunID).
		Float64("accuracy", accuracy).
		Str("model", version.Name).
		Int("version", version.Version).
		Msg("Run recorded")

	return Result{
		RunID:        run.RunID,
		ExperimentID: run.ExperimentID,
		RunURL:       deps.Store.RunURL(run),
		Accuracy:     accuracy,
		Version:      version,
		Revision:     revision,
		TrainRows:    len(train),
		TestRows:     len(test),
		Model:        model,
	}, nil
}

// dataRevision never fails: an unreadable repository degrades to "unknown".
func dataRevision(repoPath string, lookup func(string) (string, error)) string {
	if lookup == nil {
		lookup = vcs.Revision
	}
	rev, err := lookup(repoPath)
	if err != nil || rev == "" {
		log.Warn().Err(err).Str("repo", repoPath).Msg("Could not retrieve git commit hash, tagging run as unknown")
		return common.UnknownRevision
	}
	return rev
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
