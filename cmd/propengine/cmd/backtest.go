package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"propengine/backtest"
	"propengine/config"
	"propengine/feed"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars and score the run",
	Long: `Replay an H1 bar CSV through the full decision loop against the
simulated gateway, then print trade statistics and a go/no-go verdict.

Example:
  propengine backtest --config configs/eurusd.yaml --data data/EURUSD_H1.csv \
    --from 2025-01-01 --to 2025-07-01`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btDataPath   string
	btFrom       string
	btTo         string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "f", "", "path to YAML config (required)")
	backtestCmd.Flags().StringVar(&btDataPath, "data", "", "path to H1 bar CSV (required)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "start date, YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "end date, YYYY-MM-DD (exclusive)")
	backtestCmd.MarkFlagRequired("config")
	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger("warn", cfg.Logging.Pretty)

	from, to, err := parseRange(btFrom, btTo)
	if err != nil {
		return err
	}

	src, err := feed.NewCSVCandleFeed(btDataPath, from, to)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer src.Close()

	report, err := backtest.Run(cmd.Context(), cfg, src, log)
	if err != nil {
		return err
	}

	report.Print(os.Stdout)
	if !report.Go() {
		// Non-zero exit so CI pipelines can gate on the verdict.
		return fmt.Errorf("run failed go/no-go checks")
	}
	return nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse("2006-01-02", from); err != nil {
			return f, t, fmt.Errorf("bad --from: %w", err)
		}
	}
	if to != "" {
		if t, err = time.Parse("2006-01-02", to); err != nil {
			return f, t, fmt.Errorf("bad --to: %w", err)
		}
	}
	return f, t, nil
}
