// Command registry inspects the model registry and exports registered models
// to the serving path.
package main

import (
	"context"
	"os"

	"taxi-ct/internal/cfg"
	"taxi-ct/internal/tracking"
	"taxi-ct/internal/tracking/backend"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var settings cfg.Settings

func main() {
	// A missing .env is fine
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "registry",
		Short:         "inspect registered models and export them for serving",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = cfg.Load()
			if err != nil {
				return err
			}
			name := settings.LogLevel
			if logLevel != "" {
				name = logLevel
			}
			level, err := zerolog.ParseLevel(name)
			if err != nil || name == "" {
				level = zerolog.InfoLevel
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(listCmd(), exportCmd(), showCmd())
	return root
}

// withStore opens the configured tracking store for the duration of fn.
func withStore(ctx context.Context, fn func(store tracking.Store) error) error {
	store, err := backend.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func listCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list the versions of a registered model, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = settings.RegisteredModel
			}
			return withStore(cmd.Context(), func(store tracking.Store) error {
				return listVersions(cmd.Context(), store, model, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "registered model name (default: REGISTERED_MODEL)")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		model   string
		version int
		out     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "write a registered model version to the serving path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = settings.RegisteredModel
			}
			if out == "" {
				out = settings.ModelPath
			}
			return withStore(cmd.Context(), func(store tracking.Store) error {
				mv, err := exportVersion(cmd.Context(), store, model, version, out)
				if err != nil {
					return err
				}
				log.Info().Str("model", mv.Name).Int("version", mv.Version).Str("run_id", mv.RunID).Str("path", out).Msg("Model exported")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "registered model name (default: REGISTERED_MODEL)")
	cmd.Flags().IntVar(&version, "version", 0, "version to export (default: latest)")
	cmd.Flags().StringVar(&out, "out", "", "destination (default: MODEL_PATH)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "print a recorded run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store tracking.Store) error {
				return showRun(cmd.Context(), store, args[0], cmd.OutOrStdout())
			})
		},
	}
}
