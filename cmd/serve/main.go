package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/metrics"
	"taxi-ct/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	var (
		modelPath = flag.String("model", "", "Model artifact path (default: MODEL_PATH)")
		port      = flag.Int("port", 0, "Listen port (default: SERVER_PORT)")
		logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setLogLevel(*logLevel, settings.LogLevel)

	if *modelPath != "" {
		settings.ModelPath = *modelPath
	}
	if *port != 0 {
		settings.ServerPort = *port
	}

	// The model is loaded once; every request shares this handle.
	model, err := ml.LoadModel(settings.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", settings.ModelPath).Msg("Failed to load model")
	}
	log.Info().
		Str("path", settings.ModelPath).
		Strs("features", model.Features).
		Time("trained_at", model.TrainedAt).
		Msg("Model loaded")

	srv := ml.NewModelServer(model, settings.ServerPort, metrics.NewWrapper(metrics.New()))

	errs := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errs:
		log.Fatal().Err(err).Msg("model server failed")
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
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
