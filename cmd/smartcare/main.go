package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/config"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
)

var (
	// Global flags
	configFile   string
	dataPath     string
	artifactsDir string
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartcare",
		Short: "Hospital admissions forecasting at J+4",
		Long: `Operator tool for the admissions forecaster.
Trains and versions models, then serves single-day and multi-day forecasts
from the command line.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (JSON), defaults to $SMARTCARE_CONFIG")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "History CSV, overrides the configured data path")
	rootCmd.PersistentFlags().StringVar(&artifactsDir, "artifacts", "", "Artifact directory, overrides the configured one")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(similarCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(metricsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataPath != "" {
		cfg.Data.Source = config.SourceCSV
		cfg.Data.Path = dataPath
	}
	if artifactsDir != "" {
		cfg.Artifacts.Dir = artifactsDir
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	} else if level == "info" {
		// Keep stdout for the tables
		level = "warn"
	}
	logger, err := logging.New(level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) series(ctx context.Context) (*series.Series, error) {
	s, err := e.cfg.LoadSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s, nil
}

func (e *env) artifacts() *artifacts.Store {
	return artifacts.NewStore(e.cfg.Artifacts.Dir, e.logger)
}

func (e *env) forecaster(ctx context.Context) (*forecast.Forecaster, error) {
	s, err := e.series(ctx)
	if err != nil {
		return nil, err
	}
	return forecast.New(s, e.artifacts(), e.cfg.ForecastConfig(), e.logger, nil), nil
}
