package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/common"
	"taxi-ct/internal/dataset"
	"taxi-ct/internal/remote"
	"taxi-ct/internal/trips"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	var (
		n        = flag.Int("n", common.DefaultSampleCount, "Number of trip records to generate")
		seed     = flag.Uint64("seed", 0, "Random seed (0 picks one from the clock)")
		out      = flag.String("out", "", "Output CSV path (default: DATA_PATH)")
		track    = flag.Bool("track", true, "Write the .dvc reference next to the output")
		push     = flag.Bool("push", false, "Upload the output to DATA_REMOTE")
		preview  = flag.Bool("preview", false, "Log the first rows")
		logLevel = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setLogLevel(*logLevel, settings.LogLevel)

	if *n <= 0 {
		log.Fatal().Int("n", *n).Msg("Number of records must be positive")
	}
	path := settings.DataPath
	if *out != "" {
		path = *out
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	log.Info().Int("n", *n).Uint64("seed", *seed).Str("path", path).Msg("Generating synthetic trips")

	records := trips.Generate(trips.NewRand(*seed), *n, trips.DefaultGenerateOptions())
	if err := trips.WriteCSV(path, records); err != nil {
		log.Fatal().Err(err).Msg("Failed to write dataset")
	}

	if *preview {
		for i := 0; i < len(records) && i < 5; i++ {
			r := records[i]
			log.Info().
				Int("row", i).
				Time("pickup", r.PickupDatetime.Time).
				Int("passenger_count", r.PassengerCount).
				Float64("trip_distance", r.TripDistance).
				Float64("fare_amount", r.FareAmount).
				Float64("duration_minutes", r.DurationMinutes).
				Msg("Preview")
		}
	}

	if *track || *push {
		loc, err := dataset.Track(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to track dataset")
		}
		log.Info().Str("md5", loc.MD5).Int64("bytes", loc.Size).Str("ref", dataset.SidecarPath(path)).Msg("Dataset tracked")
	}

	if *push {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		store, err := remote.Open(ctx, settings.RemoteURL, remote.S3Config{
			Region:       settings.S3Region,
			Endpoint:     settings.S3Endpoint,
			UsePathStyle: settings.S3PathStyle,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open data remote")
		}
		if err := dataset.NewProvider(store).Push(ctx, path); err != nil {
			log.Fatal().Err(err).Msg("Failed to push dataset")
		}
	}

	fmt.Printf("Successfully generated %d rows of synthetic data to %s\n", len(records), path)
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
