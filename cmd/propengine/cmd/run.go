package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"propengine/alerts"
	"propengine/config"
	"propengine/engine"
	"propengine/feed"
	"propengine/indicators"
	"propengine/journal"
	"propengine/market"
	"propengine/news"
	"propengine/risk"
	"propengine/session"
	"propengine/sim"
	"propengine/strategy"
	"propengine/trade"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision engine in paper-trading mode",
	Long: `Run the engine against the simulated gateway, following a bar CSV
that an external data process keeps appending to.

Each poll the engine re-reads the tail of the data file, sweeps stops
against any newly closed bar, and evaluates entries exactly as a live
session would.

Example:
  propengine run --config configs/eurusd.yaml --data data/EURUSD_H1.csv`,
	RunE: runRun,
}

var (
	runConfigPath string
	runDataPath   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to YAML config (required)")
	runCmd.Flags().StringVar(&runDataPath, "data", "", "path to H1 bar CSV the engine follows (required)")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("data")
}

// memorySource is a swappable candle window serving engine.DataSource.
type memorySource struct {
	bars []market.Candle
}

func (m *memorySource) History(ctx context.Context, count int) ([]market.Candle, error) {
	if len(m.bars) > count {
		return m.bars[len(m.bars)-count:], nil
	}
	return m.bars, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.Logging.Level, cfg.Logging.Pretty)

	inst := market.Instruments[cfg.Account.Instrument]

	jrnl, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrnl.Close()

	var notify alerts.Notifier = alerts.Nop{}
	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notify = tg
	}

	strat, err := strategy.New(cfg.Strategy.Name, strategyConfig(cfg))
	if err != nil {
		return err
	}

	gw := sim.NewGateway(sim.Config{
		Instrument: inst,
		Balance:    cfg.Account.InitialBalance,
		SpreadPips: 1.0,
	})
	if err := gw.Connect(); err != nil {
		return err
	}
	defer gw.Disconnect()

	rk := risk.NewEngine(riskConfig(cfg), log)
	mgr := trade.NewManager(tradeConfig(cfg, inst), gw, log)
	guard := news.NewGuard(newsConfig(cfg),
		news.NewFairEconomy(cfg.News.URL, 10*time.Second), log)

	src := &memorySource{}
	eng := engine.New(
		engine.Config{
			Instrument: inst,
			Session: session.Window{
				Enabled:   cfg.Session.Enabled,
				StartHour: cfg.Session.StartHour,
				EndHour:   cfg.Session.EndHour,
			},
			Indicator: indicators.DefaultConfig(),
			Heartbeat: cfg.HeartbeatInterval(),
		},
		gw, src, rk, strat, mgr, guard, jrnl, notify, log,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("instrument", inst.Name).
		Str("strategy", strat.Name()).
		Str("timeframe", market.H1.String()).
		Str("data", runDataPath).
		Msg("paper trading started")
	notify.Started(inst.Name, strat.Name())
	defer notify.Stopped("shutdown")

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	var lastBar time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			bars, err := loadBars(runDataPath)
			if err != nil {
				log.Error().Err(err).Msg("reload data file failed")
				continue
			}
			if len(bars) == 0 {
				continue
			}
			src.bars = bars

			// Sweep stops only against bars the gateway has not seen.
			last := bars[len(bars)-1]
			if last.Time.After(lastBar) {
				gw.CheckBar(last)
				lastBar = last.Time
			}

			if err := eng.Cycle(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("cycle failed")
			}
		}
	}
}

func loadBars(path string) ([]market.Candle, error) {
	f, err := feed.NewCSVCandleFeed(path, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bars []market.Candle
	for {
		c, ok, err := f.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return bars, nil
		}
		bars = append(bars, c)
	}
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	kill := true
	if cfg.Risk.TrailingKill != nil {
		kill = *cfg.Risk.TrailingKill
	}
	return risk.Config{
		InitialBalance:    cfg.Account.InitialBalance,
		RiskPercent:       cfg.Risk.RiskPercent,
		RiskReduced:       cfg.Risk.RiskReduced,
		MaxDailyLossPct:   cfg.Risk.MaxDailyLossPct,
		MaxTotalDDPct:     cfg.Risk.MaxTotalDDPct,
		TrailingDDEnabled: cfg.Risk.TrailingDDEnabled,
		TrailingDDPct:     cfg.Risk.TrailingDDPct,
		TrailingKill:      kill,
		MaxConsecLosses:   cfg.Risk.MaxConsecLosses,
		ReduceAfter:       cfg.Risk.ReduceAfter,
		MaxTradesPerDay:   cfg.Risk.MaxTradesPerDay,
		MaxSpreadPips:     cfg.Risk.MaxSpreadPips,
		DDTier1Pct:        cfg.Risk.DDTier1Pct,
		DDTier2Pct:        cfg.Risk.DDTier2Pct,
		DDTier2Factor:     cfg.Risk.DDTier2Factor,
	}
}

func tradeConfig(cfg *config.Config, inst market.Instrument) trade.Config {
	return trade.Config{
		Instrument:       inst,
		StrategyTag:      cfg.Strategy.Name,
		BreakevenEnabled: cfg.Trade.BreakevenEnabled,
		BreakevenR:       cfg.Trade.BreakevenR,
		PartialEnabled:   cfg.Trade.PartialEnabled,
		PartialR:         cfg.Trade.PartialR,
		PartialPct:       cfg.Trade.PartialPct,
		TrailingEnabled:  cfg.Trade.TrailingEnabled,
		TrailingStartR:   cfg.Trade.TrailingStartR,
		TrailingATRMult:  cfg.Trade.TrailingATRMult,
		Retries:          cfg.Trade.Retries,
		RetryDelay:       time.Duration(cfg.Trade.RetryDelayMs) * time.Millisecond,
	}
}

func newsConfig(cfg *config.Config) news.Config {
	return news.Config{
		Enabled:           cfg.News.Enabled,
		Currencies:        cfg.News.Currencies,
		BlockBeforeMin:    cfg.News.BlockBeforeMin,
		BlockAfterMin:     cfg.News.BlockAfterMin,
		CancelPendingMin:  cfg.News.CancelPendingMin,
		ForceBreakevenMin: cfg.News.ForceBreakevenMin,
		RefreshInterval:   time.Duration(cfg.News.RefreshMinutes) * time.Minute,
	}
}

func strategyConfig(cfg *config.Config) strategy.Config {
	return strategy.Config{
		RRRatio:          cfg.Strategy.RRRatio,
		ADXThreshold:     cfg.Strategy.ADXThreshold,
		DISeparation:     cfg.Strategy.DISeparation,
		RSIBuyLow:        cfg.Strategy.RSIBuyLow,
		RSIBuyHigh:       cfg.Strategy.RSIBuyHigh,
		RSISellLow:       cfg.Strategy.RSISellLow,
		RSISellHigh:      cfg.Strategy.RSISellHigh,
		PullbackBandPct:  cfg.Strategy.PullbackBandPct,
		MinBodyRatio:     cfg.Strategy.MinBodyRatio,
		MinStopATR:       cfg.Strategy.MinStopATR,
		MaxStopATR:       cfg.Strategy.MaxStopATR,
		MinStopPips:      cfg.Strategy.MinStopPips,
		MaxStopPips:      cfg.Strategy.MaxStopPips,
		LondonEntryStart: cfg.Strategy.LondonEntryStart,
		LondonEntryEnd:   cfg.Strategy.LondonEntryEnd,
		AsianStartHour:   cfg.Strategy.AsianStartHour,
		AsianEndHour:     cfg.Strategy.AsianEndHour,
		MinRangePips:     cfg.Strategy.MinRangePips,
		MaxRangePips:     cfg.Strategy.MaxRangePips,
		RangeBufferATR:   cfg.Strategy.RangeBufferATR,
		TrendFilter:      cfg.Strategy.TrendFilter,
	}
}
