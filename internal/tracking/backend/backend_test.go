package backend

import (
	"context"
	"testing"
	"time"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/common"
	"taxi-ct/internal/storage"
	"taxi-ct/internal/tracking/mlflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	local, err := Open(ctx, cfg.Settings{TrackingBackend: common.BackendLocal, TrackingPath: t.TempDir()})
	require.NoError(t, err)
	defer local.Close()
	assert.IsType(t, &storage.Store{}, local)

	remote, err := Open(ctx, cfg.Settings{
		TrackingBackend: common.BackendMLflow,
		TrackingURI:     "http://localhost:5001",
		TrackingTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.IsType(t, &mlflow.Client{}, remote)

	_, err = Open(ctx, cfg.Settings{TrackingBackend: "sqlite"})
	assert.Error(t, err)
}
