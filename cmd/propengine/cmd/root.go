package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "propengine",
	Short: "A single-instrument FX decision engine for prop-firm accounts",
	Long: `Propengine is an automated trading decision engine built around a
prop-firm risk mandate.

It provides:
  - A risk state machine enforcing daily, total and trailing drawdown limits
  - Multi-timeframe signal generation (trend pullback, London breakout)
  - Position lifecycle management: breakeven, partial close, trailing stop
  - News and session guards around scheduled high-impact events
  - Bar-replay backtesting with go/no-go scoring
  - CSV and SQLite trade journaling with Telegram alerts`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from the config's logging section.
func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}
