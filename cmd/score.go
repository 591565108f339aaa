package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/engine"
	"github.com/sells-group/eva-cli/internal/monitoring"
	"github.com/sells-group/eva-cli/internal/schedule"
)

var (
	scoreWindowDays  int
	scoreConcurrency int
	scoreNoTrends    bool
	scoreSchedule    string
	scoreFormat      string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score recent candidate signals",
	Long:  "Runs one scoring pass over the candidates of the last N days, or repeats it on a cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("score"); err != nil {
			return err
		}
		if err := checkFormat(scoreFormat); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		eng, err := initEngine(st, engineOverrides{
			windowDays:  scoreWindowDays,
			concurrency: scoreConcurrency,
			noTrends:    scoreNoTrends,
		})
		if err != nil {
			return err
		}

		runner := monitoring.NewChecker(eng, monitoring.NewAlerter(cfg.Monitoring))
		if scoreSchedule == "" {
			return runScore(ctx, runner, os.Stdout, scoreFormat)
		}
		return runScheduled(ctx, runner, scoreSchedule, os.Stdout, scoreFormat)
	},
}

// scoreRunner is the part of the engine the score command drives.
type scoreRunner interface {
	Run(ctx context.Context) (*engine.RunStats, error)
}

// runScore performs one pass and prints its stats. Partial stats from a
// canceled run are still printed.
func runScore(ctx context.Context, eng scoreRunner, w io.Writer, format string) error {
	stats, err := eng.Run(ctx)
	if stats != nil {
		if ferr := formatRunStats(w, stats, format); ferr != nil {
			return ferr
		}
	}
	if err != nil {
		return eris.Wrap(err, "score")
	}
	return nil
}

// runScheduled repeats runScore on spec until ctx is done.
func runScheduled(ctx context.Context, eng scoreRunner, spec string, w io.Writer, format string) error {
	runner := schedule.New(ctx, zap.L())
	if err := runner.Add(spec, func(ctx context.Context) {
		if err := runScore(ctx, eng, w, format); err != nil {
			zap.L().Error("scheduled score run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	runner.Start()
	zap.L().Info("scoring on schedule", zap.String("spec", spec))
	<-ctx.Done()
	runner.Stop()
	return nil
}

func init() {
	scoreCmd.Flags().IntVar(&scoreWindowDays, "window-days", 0, "days of candidates to score (default from config)")
	scoreCmd.Flags().IntVar(&scoreConcurrency, "concurrency", 0, "candidates processed at once (default from config)")
	scoreCmd.Flags().BoolVar(&scoreNoTrends, "no-trends", false, "skip Google Trends cross-validation")
	scoreCmd.Flags().StringVar(&scoreSchedule, "schedule", "", "cron spec to repeat scoring on, e.g. \"0 * * * *\"")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", formatTable, "output format: table or json")
	rootCmd.AddCommand(scoreCmd)
}
