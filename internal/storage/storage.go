// Package storage provides the local experiment-tracking backend.
// It uses BoltDB as the underlying storage engine to keep experiments, runs,
// model artifacts and the model registry in a single file.
//
// A run, its artifact and its registry version are written in one BoltDB
// transaction, so a failed recording leaves nothing behind.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"taxi-ct/internal/tracking"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	experimentsBucket = "experiments" // experiment name -> experiment record
	runsBucket        = "runs"        // run id -> run record
	artifactsBucket   = "artifacts"   // run id/path -> artifact bytes
	registryBucket    = "registry"    // model name -> nested bucket of versions

	dbFile = "tracking.db"
)

type experiment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides persistent tracking storage using BoltDB.
type Store struct {
	db   *bbolt.DB // BoltDB database instance
	path string
}

var _ tracking.Store = (*Store)(nil)

// New opens (creating if needed) the tracking database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{experimentsBucket, runsBucket, artifactsBucket, registryBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores the run, its artifact and the next registry version of
// rec.RegisteredModel in a single transaction.
func (s *Store) Record(ctx context.Context, rec tracking.RunRecord) (tracking.Run, tracking.ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}
	if err := rec.Validate(); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}

	now := time.Now().UTC()
	start := rec.StartTime
	if start.IsZero() {
		start = now
	}

	runID := uuid.NewString()
	run := tracking.Run{
		RunID:       runID,
		RunName:     rec.RunName,
		Status:      tracking.RunStatusFinished,
		StartTime:   start.UTC(),
		EndTime:     now,
		Params:      rec.Params,
		Metrics:     rec.Metrics,
		Tags:        rec.Tags,
		ArtifactURI: tracking.RunsURI(runID, ""),
	}
	var version tracking.ModelVersion

	err := s.db.Update(func(tx *bbolt.Tx) error {
		exp, err := getOrCreateExperiment(tx, rec.ExperimentName, now)
		if err != nil {
			return err
		}
		run.ExperimentID = exp.ID

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := tx.Bucket([]byte(runsBucket)).Put([]byte(run.RunID), data); err != nil {
			return fmt.Errorf("store run: %w", err)
		}

		if err := tx.Bucket([]byte(artifactsBucket)).Put(artifactKey(run.RunID, rec.ArtifactPath), rec.Artifact); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}

		version, err = registerVersion(tx, rec.RegisteredModel, run.RunID, tracking.RunsURI(run.RunID, rec.ArtifactPath), now)
		return err
	})
	if err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}

	return run, version, nil
}

// GetRun returns a recorded run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (tracking.Run, error) {
	var run tracking.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", tracking.ErrRunNotFound, runID)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// Artifact returns a copy of the bytes stored for runID under path.
func (s *Store) Artifact(ctx context.Context, runID, path string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(artifactsBucket)).Get(artifactKey(runID, path))
		if data == nil {
			return fmt.Errorf("%w: %s", tracking.ErrArtifactNotFound, tracking.RunsURI(runID, path))
		}
		// bbolt memory is only valid inside the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

// RunURL is empty; the local store has no UI.
func (s *Store) RunURL(run tracking.Run) string {
	return ""
}

// ListRuns returns every run of an experiment in no particular order.
func (s *Store) ListRuns(ctx context.Context, experimentName string) ([]tracking.Run, error) {
	var runs []tracking.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(experimentsBucket)).Get([]byte(experimentName))
		if data == nil {
			return nil
		}
		var exp experiment
		if err := json.Unmarshal(data, &exp); err != nil {
			return fmt.Errorf("decode experiment: %w", err)
		}

		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			var run tracking.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil // Skip malformed records
			}
			if run.ExperimentID == exp.ID {
				runs = append(runs, run)
			}
			return nil
		})
	})
	return runs, err
}

func getOrCreateExperiment(tx *bbolt.Tx, name string, now time.Time) (experiment, error) {
	b := tx.Bucket([]byte(experimentsBucket))

	var exp experiment
	if data := b.Get([]byte(name)); data != nil {
		if err := json.Unmarshal(data, &exp); err != nil {
			return experiment{}, fmt.Errorf("decode experiment %s: %w", name, err)
		}
		return exp, nil
	}

	seq, err := b.NextSequence()
	if err != nil {
		return experiment{}, fmt.Errorf("allocate experiment id: %w", err)
	}
	exp = experiment{ID: strconv.FormatUint(seq, 10), Name: name, CreatedAt: now}

	data, err := json.Marshal(exp)
	if err != nil {
		return experiment{}, fmt.Errorf("marshal experiment: %w", err)
	}
	if err := b.Put([]byte(name), data); err != nil {
		return experiment{}, fmt.Errorf("store experiment: %w", err)
	}
	return exp, nil
}

func artifactKey(runID, path string) []byte {
	return []byte(runID + "/" + path)
}
