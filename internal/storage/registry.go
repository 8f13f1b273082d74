package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"taxi-ct/internal/tracking"

	"go.etcd.io/bbolt"
)

// registerVersion appends the next version of name. Keys are big-endian so the
// cursor order is the version order.
func registerVersion(tx *bbolt.Tx, name, runID, source string, now time.Time) (tracking.ModelVersion, error) {
	b, err := tx.Bucket([]byte(registryBucket)).CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("create registry entry %s: %w", name, err)
	}

	seq, err := b.NextSequence()
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("allocate version: %w", err)
	}

	version := tracking.ModelVersion{
		Name:      name,
		Version:   int(seq),
		RunID:     runID,
		Source:    source,
		CreatedAt: now,
	}

	data, err := json.Marshal(version)
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("marshal model version: %w", err)
	}
	if err := b.Put(versionKey(seq), data); err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("store model version: %w", err)
	}
	return version, nil
}

// LatestVersion returns the highest registered version of name.
func (s *Store) LatestVersion(ctx context.Context, name string) (tracking.ModelVersion, error) {
	var version tracking.ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(registryBucket)).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("%w: %s", tracking.ErrModelNotFound, name)
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return fmt.Errorf("%w: %s has no versions", tracking.ErrVersionNotFound, name)
		}
		return json.Unmarshal(v, &version)
	})
	return version, err
}

// GetVersion returns one version of name.
func (s *Store) GetVersion(ctx context.Context, name string, version int) (tracking.ModelVersion, error) {
	var mv tracking.ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(registryBucket)).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("%w: %s", tracking.ErrModelNotFound, name)
		}
		if version <= 0 {
			return fmt.Errorf("%w: %s version %d", tracking.ErrVersionNotFound, name, version)
		}
		data := b.Get(versionKey(uint64(version)))
		if data == nil {
			return fmt.Errorf("%w: %s version %d", tracking.ErrVersionNotFound, name, version)
		}
		return json.Unmarshal(data, &mv)
	})
	return mv, err
}

// ListVersions returns every version of name, newest first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]tracking.ModelVersion, error) {
	var versions []tracking.ModelVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(registryBucket)).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("%w: %s", tracking.ErrModelNotFound, name)
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var mv tracking.ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				continue // Skip malformed records
			}
			versions = append(versions, mv)
		}
		return nil
	})
	return versions, err
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func versionKey(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
