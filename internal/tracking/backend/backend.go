// Package backend opens the tracking.Store selected by the settings.
package backend

import (
	"context"
	"fmt"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/common"
	"taxi-ct/internal/storage"
	"taxi-ct/internal/tracking"
	"taxi-ct/internal/tracking/mlflow"

	"github.com/rs/zerolog/log"
)

// Open returns the local bbolt store or an MLflow client.
func Open(ctx context.Context, settings cfg.Settings) (tracking.Store, error) {
	switch settings.TrackingBackend {
	case common.BackendLocal, "":
		store, err := storage.New(settings.TrackingPath)
		if err != nil {
			return nil, fmt.Errorf("open local tracking store: %w", err)
		}
		log.Debug().Str("path", store.Path()).Msg("Opened local tracking store")
		return store, nil
	case common.BackendMLflow:
		log.Debug().Str("uri", settings.TrackingURI).Msg("Using MLflow tracking server")
		return mlflow.New(settings.TrackingURI, settings.TrackingTimeout), nil
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", settings.TrackingBackend)
	}
}
