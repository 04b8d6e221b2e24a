// Package backtest replays historical bars through the live decision
// loop against the simulated gateway, then scores the run against
// go/no-go criteria.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

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

// window is a sliding candle buffer serving the engine's DataSource.
type window struct {
	bars []market.Candle
	max  int
}

func (w *window) push(c market.Candle) {
	w.bars = append(w.bars, c)
	if len(w.bars) > w.max {
		w.bars = w.bars[len(w.bars)-w.max:]
	}
}

func (w *window) History(ctx context.Context, count int) ([]market.Candle, error) {
	return w.bars, nil
}

// Run replays src bar by bar. The news guard is disabled: historical
// calendar data is not available, and a stale blackout would distort
// results silently.
func Run(ctx context.Context, cfg *config.Config, src feed.CandleSource, log zerolog.Logger) (*Report, error) {
	inst, ok := market.Instruments[cfg.Account.Instrument]
	if !ok {
		return nil, fmt.Errorf("unknown instrument %q", cfg.Account.Instrument)
	}

	strat, err := strategy.New(cfg.Strategy.Name, strategyConfig(cfg))
	if err != nil {
		return nil, err
	}

	gw := sim.NewGateway(sim.Config{
		Instrument: inst,
		Balance:    cfg.Account.InitialBalance,
		SpreadPips: cfg.Risk.MaxSpreadPips / 2,
	})
	if err := gw.Connect(); err != nil {
		return nil, err
	}

	rk := risk.NewEngine(riskConfig(cfg), log)
	mgr := trade.NewManager(trade.Config{
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
		Retries:          1,
	}, gw, log)

	guard := news.NewGuard(news.Config{Enabled: false}, nil, log)
	win := &window{max: engine.HistoryBars}

	eng := engine.New(
		engine.Config{
			Instrument: inst,
			Session: session.Window{
				Enabled:   cfg.Session.Enabled,
				StartHour: cfg.Session.StartHour,
				EndHour:   cfg.Session.EndHour,
			},
			Indicator: indicators.DefaultConfig(),
			Heartbeat: 24 * time.Hour,
		},
		gw, win, rk, strat, mgr, guard, journal.Nop{}, alerts.Nop{}, log,
	)

	report := &Report{
		Strategy:     cfg.Strategy.Name,
		Instrument:   inst.Name,
		StartBalance: cfg.Account.InitialBalance,
		MaxDDLimit:   cfg.Risk.MaxTotalDDPct,
	}

	peak := cfg.Account.InitialBalance
	bars := 0
	for {
		c, ok, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("read bar: %w", err)
		}
		if !ok {
			break
		}
		bars++
		if report.Start.IsZero() {
			report.Start = c.Time
		}
		report.End = c.Time

		// Sweep stops against the bar first, then let the engine see the
		// newly closed bar at its close time.
		gw.CheckBar(c)
		win.push(c)

		now := c.Time.Add(market.H1.Duration())
		if err := eng.Cycle(ctx, now); err != nil {
			return nil, fmt.Errorf("cycle at %s: %w", c.Time, err)
		}

		equity := gw.AccountInfo().Equity
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > report.MaxDDPct {
				report.MaxDDPct = dd
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if bars == 0 {
		return nil, fmt.Errorf("no bars in feed")
	}

	gw.CloseAll("end of data")
	report.Bars = bars
	report.EndBalance = gw.AccountInfo().Balance
	report.FinalPosture = rk.Posture().String()
	report.tally(gw.History())
	if d, ok := strat.(interface{ Diag() strategy.Diag }); ok {
		report.Diag = d.Diag()
	}
	return report, nil
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
