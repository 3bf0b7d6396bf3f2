package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
	"github.com/YassChaai/SmartCare-Analytics/internal/training"
	"github.com/YassChaai/SmartCare-Analytics/internal/trend"
)

// trainCmd fits every configured model and activates the new version
func trainCmd() *cobra.Command {
	var (
		ratio      float64
		modelNames []string
		trees      int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train models and activate a new artifact version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ratio") {
				e.cfg.Training.TrainRatio = ratio
			}
			if len(modelNames) > 0 {
				e.cfg.Training.Models = modelNames
			}
			if trees > 0 {
				e.cfg.Training.Trees = trees
			}

			s, err := e.series(ctx)
			if err != nil {
				return err
			}
			res, err := training.NewTrainer(e.cfg.TrainingConfig(), e.logger, nil).Train(ctx, s)
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}
			version, err := e.artifacts().Save(ctx, res.ArtifactSet())
			if err != nil {
				return fmt.Errorf("failed to save artifacts: %w", err)
			}

			fmt.Printf("Trained on %d rows, tested on %d rows from %s (%s)\n",
				res.TrainRows, res.TestRows, res.TestStart.Format(series.DateLayout), res.Duration.Round(time.Millisecond))
			fmt.Printf("Features: %d\n\n", len(res.Columns))
			printReport(res.Report)
			if len(res.Comparisons) > 0 {
				fmt.Printf("\n%-20s %-28s %9s %20s %8s\n", "MODEL", "BASELINE", "MAE DIFF", "95% CI", "P")
				for _, c := range res.Comparisons {
					fmt.Printf("%-20s %-28s %9.2f [%8.2f, %8.2f] %8.3f\n", c.A, c.B, c.MAEDiff, c.CI[0], c.CI[1], c.PValue)
				}
			}
			for name, reason := range res.Skipped {
				fmt.Printf("Skipped %s: %s\n", name, reason)
			}
			fmt.Printf("\nActive version: %s (default model %s)\n", version, res.DefaultModel)
			return nil
		},
	}

	cmd.Flags().Float64Var(&ratio, "ratio", 0.8, "Chronological train fraction")
	cmd.Flags().StringSliceVar(&modelNames, "models", nil, "Models to train (gradient_boosting, random_forest, linear_regression)")
	cmd.Flags().IntVar(&trees, "trees", 0, "Trees per ensemble (0 keeps the model default)")
	return cmd
}

// predictCmd prints the J+4 forecast of one date
func predictCmd() *cobra.Command {
	var (
		date     string
		weather  string
		event    string
		model    string
		holiday  bool
		temp     float64
		trendPct float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast admissions four days after a date",
		Long: `Forecasts admissions at J+4. Without --date the latest history row is
used. Dates past the history are served from similar days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			f, err := e.forecaster(ctx)
			if err != nil {
				return err
			}

			req := forecast.Request{
				Date:        f.Series().Last().Date,
				Weather:     weather,
				Event:       event,
				Holiday:     holiday,
				Temperature: math.NaN(),
				Model:       orDefault(model, e.cfg.Inference.Model),
			}
			if date != "" {
				if req.Date, err = series.ParseDate(date); err != nil {
					return fmt.Errorf("invalid date %q: %w", date, err)
				}
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = temp
			}
			if cmd.Flags().Changed("trend") {
				req.TrendPct = &trendPct
			}

			day, err := f.Predict(ctx, req)
			if err != nil {
				return err
			}

			fmt.Printf("date_J:              %s\n", day.DateJ)
			fmt.Printf("prediction_J+4:      %.2f\n", day.Prediction)
			fmt.Printf("prediction_safe_J+4: %.2f\n", day.PredictionSafe)
			fmt.Printf("source:              %s\n", sourceLabel(day.Source, day.Model))
			if day.TrendPct != 0 {
				fmt.Printf("trend:               %+.2f%%\n", day.TrendPct)
			}
			fmt.Printf("urgences:            %.1f\n", day.Urgences)
			fmt.Printf("occupation:          %.1f%%\n", day.Occupation*100)
			if day.Neighbours != nil {
				fmt.Printf("neighbours:          %d (mean distance %.2f)\n", day.Neighbours.Count, day.Neighbours.DistanceMean)
			}
			printWarnings(day.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Reference date J (YYYY-MM-DD)")
	cmd.Flags().StringVar(&weather, "meteo", "", "Weather override (Soleil, Pluie, Froid, Canicule, ...)")
	cmd.Flags().StringVar(&event, "event", "", "Special event override (Aucun for none)")
	cmd.Flags().StringVar(&model, "model", "", "Model name, defaults to the active default model")
	cmd.Flags().BoolVar(&holiday, "holiday", false, "School holiday on the target day")
	cmd.Flags().Float64Var(&temp, "temperature", 0, "Mean temperature, defaults to the month mean")
	cmd.Flags().Float64Var(&trendPct, "trend", 0, "Trend adjustment in percent, replaces the historical trend")
	return cmd
}

// forecastCmd prints a multi-day forecast with its resource summary
func forecastCmd() *cobra.Command {
	var (
		start string
		days  int
		model string
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast consecutive days and the resources they need",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			f, err := e.forecaster(ctx)
			if err != nil {
				return err
			}

			from := f.Series().Last().Date.AddDate(0, 0, 1)
			if start != "" {
				if from, err = series.ParseDate(start); err != nil {
					return fmt.Errorf("invalid start %q: %w", start, err)
				}
			}
			batch, err := f.PredictRange(ctx, from, days, orDefault(model, e.cfg.Inference.Model))
			if err != nil {
				return err
			}

			capacity := resources.CapacityFrom(f.Series())
			if e.cfg.Resources.BedsTotal > 0 {
				capacity.BedsTotal = e.cfg.Resources.BedsTotal
			}
			sum := capacity.Summarize(batch)

			fmt.Printf("%-12s %10s %10s %-6s %9s %7s %-9s\n", "DATE", "PRED", "SAFE", "SOURCE", "URGENCES", "OCC", "BEDS")
			for i, d := range batch.Days {
				est := sum.Estimates[i]
				fmt.Printf("%-12s %10.1f %10.1f %-6s %9.1f %6.1f%% %-9s\n",
					d.DateJ, d.Prediction, d.PredictionSafe, d.Source, d.Urgences, d.Occupation*100, est.BedStatus)
			}
			fmt.Printf("\nBeds: %d total, peak %d occupied, mean %d\n", sum.BedsTotal, sum.PeakBedsOccupied, sum.MeanBedsOccupied)
			fmt.Printf("Staff: peak %d needed, mean %d\n", sum.PeakStaffNeeded, sum.MeanStaffNeeded)
			if len(sum.CriticalDays) > 0 {
				fmt.Printf("Critical days: %s\n", strings.Join(sum.CriticalDays, ", "))
			}
			printWarnings(batch.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First date (YYYY-MM-DD), defaults to the day after the history")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days")
	cmd.Flags().StringVar(&model, "model", "", "Model name")
	return cmd
}

// similarCmd lists the historical days closest to a target day
func similarCmd() *cobra.Command {
	var (
		date    string
		weather string
		event   string
		holiday bool
		temp    float64
		k       int
	)

	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Find historical days similar to a target day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			target, err := series.ParseDate(date)
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", date, err)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			f, err := e.forecaster(ctx)
			if err != nil {
				return err
			}

			t := math.NaN()
			if cmd.Flags().Changed("temperature") {
				t = temp
			}
			s, q := f.Similar(ctx, similarity.NewDescriptor(target, holiday, t, weather, event), k)

			fmt.Printf("%-4s %-12s %10s %9s\n", "RANK", "DATE", "ADMISSIONS", "DISTANCE")
			for i, c := range s.Candidates {
				fmt.Printf("%-4d %-12s %10.0f %9.3f\n", i+1, c.Row.Date.Format(series.DateLayout), c.Admissions(), c.Distance)
			}
			fmt.Printf("\nFound %d of %d neighbours\n", q.Count, s.K)
			if q.Count > 0 {
				fmt.Printf("Distance: min %.3f, mean %.3f, max %.3f\n", q.DistanceMin, q.DistanceMean, q.DistanceMax)
				fmt.Printf("Admissions: mean %.1f, std %.1f, range %.0f-%.0f\n", q.AdmissionsMean, q.AdmissionsStd, q.AdmissionsMin, q.AdmissionsMax)
			}
			if q.LowConfidence {
				fmt.Println("Low confidence: fewer neighbours than requested or a category absent from history")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&weather, "meteo", "", "Weather category")
	cmd.Flags().StringVar(&event, "event", "", "Special event")
	cmd.Flags().BoolVar(&holiday, "holiday", false, "School holiday")
	cmd.Flags().Float64Var(&temp, "temperature", 0, "Mean temperature")
	cmd.Flags().IntVar(&k, "k", similarity.DefaultK, "Number of neighbours")
	cmd.MarkFlagRequired("date")
	return cmd
}

// trendCmd prints the compound annual growth of admissions
func trendCmd() *cobra.Command {
	var startYear, endYear, years int

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show the annual admissions trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			s, err := e.series(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("years") {
				years = e.cfg.Inference.TrendYears
			}
			if startYear == 0 {
				startYear = s.First().Year
			}
			if endYear == 0 {
				endYear = s.Last().Year
			}

			t := trend.Compute(s, startYear, endYear, years)
			fmt.Printf("Period:          %d-%d\n", t.StartYear, t.EndYear)
			fmt.Printf("Mean admissions: %.1f -> %.1f\n", t.MeanAtStart, t.MeanAtEnd)
			fmt.Printf("Annual growth:   %+.2f%%\n", t.AnnualGrowthPct)
			fmt.Printf("Over %d years:    %+.2f%% (factor %.4f)\n", t.Years, t.ExtrapolatedPct, t.Factor())
			return nil
		},
	}

	cmd.Flags().IntVar(&startYear, "start", 0, "First year, defaults to the first history year")
	cmd.Flags().IntVar(&endYear, "end", 0, "Last year, defaults to the last history year")
	cmd.Flags().IntVar(&years, "years", trend.DefaultYears, "Extrapolation horizon in years")
	return cmd
}

// metricsCmd prints the evaluation of the active version
func metricsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show evaluation metrics of the active model set",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			store := e.artifacts()

			if all {
				manifests, err := store.List()
				if err != nil {
					return err
				}
				for _, m := range manifests {
					fmt.Printf("%s  %s  default=%s  models=%s\n",
						m.Version, m.CreatedAt.Format("2006-01-02 15:04"), m.DefaultModel, strings.Join(m.Models, ","))
				}
				return nil
			}

			report, manifest, err := store.LoadMetrics()
			if err != nil {
				return err
			}
			fmt.Printf("Version %s (trained %s, %d train / %d test rows)\n\n",
				manifest.Version, manifest.CreatedAt.Format("2006-01-02 15:04"), manifest.TrainRows, manifest.TestRows)
			printReport(report)
			if best, ok := report.BestModel(); ok {
				fmt.Printf("\nBest model: %s\n", best)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every stored version instead")
	return cmd
}

func printReport(r eval.Report) {
	fmt.Printf("%-28s %9s %9s %8s %8s\n", "MODEL", "MAE", "RMSE", "MAPE", "SMAPE")
	for _, e := range r.Ranking() {
		fmt.Printf("%-28s %9.2f %9.2f %7.2f%% %7.2f%%\n", e.Name, e.Metrics.MAE, e.Metrics.RMSE, e.Metrics.MAPE, e.Metrics.SMAPE)
	}
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func sourceLabel(source, model string) string {
	if model == "" {
		return source
	}
	return fmt.Sprintf("%s (%s)", source, model)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
