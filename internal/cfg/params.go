package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"taxi-ct/internal/common"

	"gopkg.in/yaml.v3"
)

// ErrParamsNotFound is returned when the hyperparameter file does not exist.
// Training cannot start without it.
var ErrParamsNotFound = errors.New("parameter file not found")

// Params is the hyperparameter set for one training run.
type Params struct {
	C           float64 `json:"C_hyperparameter"`
	RandomState int64   `json:"random_state"`
	TestSize    float64 `json:"test_size"`
}

type paramsFile struct {
	Train *struct {
		C           *float64 `yaml:"C_hyperparameter"`
		RandomState *int64   `yaml:"random_state"`
		TestSize    *float64 `yaml:"test_size"`
	} `yaml:"train"`
}

// DefaultParams returns the values used for keys missing from params.yaml.
func DefaultParams() Params {
	return Params{
		C:           common.DefaultC,
		RandomState: common.DefaultRandomState,
		TestSize:    common.DefaultTestSize,
	}
}

// LoadParams reads the train group from a params.yaml file. Keys that are absent
// keep their defaults; a missing file yields ErrParamsNotFound.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Params{}, fmt.Errorf("%w: %s: %w", ErrParamsNotFound, path, err)
		}
		return Params{}, fmt.Errorf("failed to read parameter file %s: %w", path, err)
	}

	var file paramsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Params{}, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}

	params := DefaultParams()
	if file.Train == nil {
		return params, nil
	}
	if file.Train.C != nil {
		params.C = *file.Train.C
	}
	if file.Train.RandomState != nil {
		params.RandomState = *file.Train.RandomState
	}
	if file.Train.TestSize != nil {
		params.TestSize = *file.Train.TestSize
	}

	return params, nil
}

// Validate rejects hyperparameters the trainer cannot use.
func (p Params) Validate() error {
	if p.C <= 0 {
		return fmt.Errorf("C_hyperparameter must be positive, got %g", p.C)
	}
	if p.TestSize <= 0 || p.TestSize >= 1 {
		return fmt.Errorf("test_size must be in (0, 1), got %g", p.TestSize)
	}
	return nil
}
