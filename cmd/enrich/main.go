package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/config"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/geocode"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/location"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
	"github.com/cuongbtq/tracker-enrich/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaultConfigPath := os.Getenv("ENRICH_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "enrich",
		Short:         "Run the tracker enrichment pipeline over local files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine, the environment may already be set
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().String("config", defaultConfigPath, "path to configuration file")

	cmd.AddCommand(
		newFullCmd(),
		newFastCmd(),
		newCoordinatesCmd(),
	)
	return cmd
}

func newFullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "full",
		Short: "Resolve coordinates, normalize statuses and salaries, write parsed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("raw")
			parsed, _ := cmd.Flags().GetString("parsed")
			return execute(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Summary, error) {
				return p.RunFull(ctx, raw, parsed)
			})
		},
	}
	cmd.Flags().String("raw", "", "raw tracker records")
	cmd.Flags().String("parsed", "", "parsed output file")
	_ = cmd.MarkFlagRequired("raw")
	_ = cmd.MarkFlagRequired("parsed")
	return cmd
}

func newFastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fast",
		Short: "Normalize statuses and salaries only, leaving coordinates empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("raw")
			parsed, _ := cmd.Flags().GetString("parsed")
			return execute(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Summary, error) {
				return p.RunFastPath(ctx, raw, parsed)
			})
		},
	}
	cmd.Flags().String("raw", "", "raw tracker records")
	cmd.Flags().String("parsed", "", "parsed output file")
	_ = cmd.MarkFlagRequired("raw")
	_ = cmd.MarkFlagRequired("parsed")
	return cmd
}

func newCoordinatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinates",
		Short: "Add coordinates to an already parsed file in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, _ := cmd.Flags().GetString("parsed")
			return execute(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Summary, error) {
				return p.RunBackgroundCoordinates(ctx, parsed)
			})
		},
	}
	cmd.Flags().String("parsed", "", "parsed records file")
	_ = cmd.MarkFlagRequired("parsed")
	return cmd
}

// execute builds the pipeline from config, runs fn and prints its summary
func execute(cmd *cobra.Command, fn func(context.Context, *pipeline.Pipeline) (*pipeline.Summary, error)) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateEnrichConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := location.OpenCache(cfg.Enrich.CachePath, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open location cache: %w", err)
	}
	autosaveDone := cache.StartAutoSave(ctx, cfg.Enrich.AutosaveInterval)

	p := pipeline.New(&pipeline.Config{
		Logger:   appLogger.Logger,
		Resolver: newResolver(&cfg.Enrich, cache, appLogger.Logger),
	})

	summary, runErr := fn(ctx, p)

	stop()
	<-autosaveDone
	if err := cache.Save(); err != nil {
		appLogger.Error("Failed to save location cache", slog.Any("error", err))
	}

	if runErr != nil {
		return fmt.Errorf("%s pipeline failed: %w", cmd.Name(), runErr)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func newResolver(cfg *config.EnrichConfig, cache *location.Cache, logger *slog.Logger) *location.Resolver {
	geocoder := geocode.NewNominatim(
		geocode.WithBaseURL(cfg.Geocoder.BaseURL),
		geocode.WithUserAgent(cfg.Geocoder.UserAgent),
		geocode.WithRateLimit(cfg.Geocoder.RateLimitRPS),
	)

	return location.NewResolver(geocoder, cache, location.Options{
		Logger:        logger,
		CourtesyDelay: cfg.CourtesyDelay,
		LookupTimeout: cfg.GeocodeTimeout,
	})
}
