package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MarshalModel serializes a model into its artifact form.
func MarshalModel(m *LogisticModel) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return data, nil
}

// UnmarshalModel decodes and checks an artifact.
func UnmarshalModel(data []byte) (*LogisticModel, error) {
	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Kind != ModelKind {
		return nil, fmt.Errorf("unsupported model kind %q", m.Kind)
	}
	if len(m.Coef) == 0 || len(m.Coef) != len(m.Features) {
		return nil, fmt.Errorf("model has %d coefficients for %d features", len(m.Coef), len(m.Features))
	}
	return &m, nil
}

// SaveModel writes the artifact to path, creating parent directories.
func SaveModel(path string, m *LogisticModel) error {
	data, err := MarshalModel(m)
	if err != nil {
		return err
	}
	return WriteArtifact(path, data)
}

// WriteArtifact atomically replaces path with data.
func WriteArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install model: %w", err)
	}
	return nil
}

// LoadModel reads the artifact at path.
func LoadModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return UnmarshalModel(data)
}
