package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/dataset"
	"taxi-ct/internal/metrics"
	"taxi-ct/internal/pipeline"
	"taxi-ct/internal/remote"
	"taxi-ct/internal/tracking/backend"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Exit codes, one per failure kind.
const (
	exitOK = iota
	exitUnexpected
	exitConfig
	exitData
	exitTraining
	exitTracking
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine
	_ = godotenv.Load()

	var (
		paramsFile = flag.String("params", "", "Hyperparameter file (default: PARAMS_FILE)")
		dataPath   = flag.String("data", "", "Tracked dataset path (default: DATA_PATH)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	settings, err := cfg.Load()
	if err != nil {
		log.Error().Err(err).Msg("config load failed")
		return exitConfig
	}
	setLogLevel(*logLevel, settings.LogLevel)

	if *paramsFile != "" {
		settings.ParamsFile = *paramsFile
	}
	if *dataPath != "" {
		settings.DataPath = *dataPath
	}

	// Parameters are checked before anything else is touched.
	config, err := pipeline.ConfigFromSettings(settings)
	if err != nil {
		log.Error().Err(err).Str("params", settings.ParamsFile).Msg("Cannot start training")
		return exitConfig
	}
	log.Info().
		Float64("C", config.Params.C).
		Int64("random_state", config.Params.RandomState).
		Float64("test_size", config.Params.TestSize).
		Msg("Parameters loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dataRemote remote.ObjectStorage
	if settings.RemoteURL != "" {
		dataRemote, err = remote.Open(ctx, settings.RemoteURL, remote.S3Config{
			Region:       settings.S3Region,
			Endpoint:     settings.S3Endpoint,
			UsePathStyle: settings.S3PathStyle,
		})
		if err != nil {
			log.Error().Err(err).Str("remote", settings.RemoteURL).Msg("Failed to open data remote")
			return exitData
		}
	}

	store, err := backend.Open(ctx, settings)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open tracking store")
		return exitTracking
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))

	res, err := pipeline.Run(ctx, config, pipeline.Deps{
		Dataset: dataset.NewProvider(dataRemote),
		Store:   store,
		Metrics: mw,
	})
	logMetrics(registry)
	if err != nil {
		log.Error().Err(err).Msg("Training run failed")
		return exitCode(err)
	}

	fmt.Printf("\nTraining Complete. Test Accuracy: %.4f\n", res.Accuracy)
	fmt.Printf("Run ID: %s\n", res.RunID)
	fmt.Printf("Registered %s version %d\n", res.Version.Name, res.Version.Version)
	if res.RunURL != "" {
		fmt.Printf("View run at: %s\n", res.RunURL)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrConfig):
		return exitConfig
	case errors.Is(err, pipeline.ErrData):
		return exitData
	case errors.Is(err, pipeline.ErrTraining):
		return exitTraining
	case errors.Is(err, pipeline.ErrTracking):
		return exitTracking
	default:
		return exitUnexpected
	}
}

func logMetrics(g prometheus.Gatherer) {
	snap, err := metrics.Snapshot(g)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to gather training metrics")
		return
	}
	ev := log.Debug()
	for name, v := range snap {
		ev = ev.Float64(name, v)
	}
	ev.Msg("Training metrics")
}

// setLogLevel prefers the flag over the configured level.
func setLogLevel(flagLevel, configured string) {
	name := configured
	if flagLevel != "" {
		name = flagLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
