// Package engine runs the trading decision loop: pull account and
// market state, settle closed trades into the risk machine, manage the
// open position, and — on each new bar — walk a candidate entry through
// every admission gate before executing it.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"propengine/alerts"
	"propengine/broker"
	"propengine/indicators"
	"propengine/journal"
	"propengine/market"
	"propengine/news"
	"propengine/risk"
	"propengine/session"
	"propengine/strategy"
	"propengine/trade"

	"propengine/internal/id"
)

// DataSource supplies closed lower-timeframe bars, oldest first.
type DataSource interface {
	History(ctx context.Context, count int) ([]market.Candle, error)
}

// HistoryBars is how many H1 bars each cycle works from. Enough for the
// 200-period trend EMA on the resampled H4 series.
const HistoryBars = 900

type Config struct {
	Instrument market.Instrument

	Session   session.Window
	Indicator indicators.Config

	Heartbeat time.Duration
}

type Engine struct {
	cfg    Config
	gw     broker.Gateway
	data   DataSource
	risk   *risk.Engine
	strat  strategy.Strategy
	mgr    *trade.Manager
	guard  *news.Guard
	jrnl   journal.Journal
	notify alerts.Notifier
	log    zerolog.Logger

	lastBarTime   time.Time
	lastHeartbeat time.Time
	dealsSeen     int
	killHandled   bool
}

func New(
	cfg Config,
	gw broker.Gateway,
	data DataSource,
	rk *risk.Engine,
	strat strategy.Strategy,
	mgr *trade.Manager,
	guard *news.Guard,
	jrnl journal.Journal,
	notify alerts.Notifier,
	log zerolog.Logger,
) *Engine {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = time.Hour
	}
	if cfg.Indicator == (indicators.Config{}) {
		cfg.Indicator = indicators.DefaultConfig()
	}
	return &Engine{
		cfg:    cfg,
		gw:     gw,
		data:   data,
		risk:   rk,
		strat:  strat,
		mgr:    mgr,
		guard:  guard,
		jrnl:   jrnl,
		notify: notify,
		log:    log.With().Str("component", "engine").Logger(),
	}
}

// Run drives Cycle on a fixed cadence until the context is canceled.
func (e *Engine) Run(ctx context.Context, poll time.Duration) error {
	e.notify.Started(e.cfg.Instrument.Name, e.strat.Name())
	defer e.notify.Stopped("shutdown")

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Cycle(ctx, time.Now().UTC()); err != nil {
				e.log.Error().Err(err).Msg("cycle failed")
			}
		}
	}
}

// Cycle is one pass of the decision loop. Position management runs on
// every call; entry evaluation only when a new bar has closed.
func (e *Engine) Cycle(ctx context.Context, now time.Time) error {
	if !e.gw.IsConnected() {
		return fmt.Errorf("gateway not connected")
	}

	acct := e.gw.AccountInfo()

	// Settle deals closed since the last cycle before any risk decision:
	// the streak and daily counters must reflect them.
	e.settleClosedTrades(acct)
	acct = e.gw.AccountInfo()

	h1, err := e.data.History(ctx, HistoryBars)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(h1) == 0 {
		return fmt.Errorf("no candle history")
	}

	ltfInd := indicators.Compute(h1, e.cfg.Indicator)
	h4 := indicators.Resample(h1)
	htfInd := indicators.Compute(h4, e.cfg.Indicator)

	e.mgr.ManageOpen(ltfInd.ATR)

	// Defensive news actions protect the book even when no entry is
	// being considered.
	if e.guard.ShouldCancelPending(now) {
		e.mgr.CancelPending("news window")
	}
	if e.guard.ShouldForceBreakeven(now) {
		e.mgr.ForceBreakeven()
	}

	e.risk.UpdateState(acct.Balance, acct.Equity, now)
	if e.risk.Posture() == risk.KillSwitch {
		e.handleKillSwitch(acct, now)
		return nil
	}
	e.killHandled = false

	lastBar := h1[len(h1)-1]
	newBar := !lastBar.Time.Equal(e.lastBarTime)
	if newBar {
		e.lastBarTime = lastBar.Time
		e.tryEnter(ctx, now, acct, h1, h4, ltfInd, htfInd)
	}

	e.heartbeat(acct, now)
	return nil
}

// tryEnter walks one candidate entry through the admission gates in
// order. The cheapest and most categorical checks run first.
func (e *Engine) tryEnter(
	ctx context.Context,
	now time.Time,
	acct broker.AccountInfo,
	h1, h4 []market.Candle,
	ltfInd, htfInd indicators.Snapshot,
) {
	if e.gw.HasPosition() {
		return
	}
	if !e.cfg.Session.Active(now) {
		e.log.Debug().Msg("outside trading session")
		return
	}
	if blocked, reason := e.guard.Blocked(ctx, now); blocked {
		e.log.Info().Str("reason", reason).Msg("news blackout")
		return
	}

	spread := e.gw.SpreadPips()
	if b := e.risk.RuleCheck(acct.Balance, acct.Equity, spread, now); b != nil {
		e.log.Info().Str("code", b.Code).Str("msg", b.Msg).Msg("entry blocked")
		if b.Code == risk.CodeKillSwitch {
			e.handleKillSwitch(acct, now)
		}
		return
	}

	sig := e.strat.Evaluate(&strategy.Context{
		Instrument: e.cfg.Instrument,
		LTF:        h1,
		HTF:        h4,
		LTFInd:     ltfInd,
		HTFInd:     htfInd,
		Ask:        e.gw.Ask(),
		Bid:        e.gw.Bid(),
		Now:        now,
	})
	if sig == nil {
		return
	}
	if !sig.Valid() {
		e.log.Warn().
			Float64("entry", sig.Entry).
			Float64("sl", sig.Stop).
			Float64("tp", sig.Target).
			Msg("signal rejected, stop or target on the wrong side")
		return
	}

	lots := e.risk.LotSize(acct.Balance, sig.StopPips, e.cfg.Instrument, e.gw.LotConstraints())
	if lots <= 0 {
		e.log.Info().Float64("stop_pips", sig.StopPips).Msg("position size rounds to zero")
		return
	}

	// The spread may have widened since the admission check.
	spread = e.gw.SpreadPips()
	if b := e.risk.CheckSpread(spread); b != nil {
		e.log.Info().Str("msg", b.Msg).Msg("spread widened before submission")
		return
	}

	res, err := e.mgr.Execute(sig, lots)
	if err != nil {
		e.log.Error().Err(err).Msg("execution failed")
		return
	}

	e.risk.OnTradeOpened()
	e.notify.TradeOpened(sig.Direction.String(), lots, res.Price, sig.Stop, sig.Target)
	e.log.Info().
		Stringer("direction", sig.Direction).
		Float64("lots", lots).
		Float64("price", res.Price).
		Float64("sl", sig.Stop).
		Float64("tp", sig.Target).
		Float64("spread", spread).
		Str("reason", sig.Reason).
		Msg("trade opened")
}

// settleClosedTrades consumes the unseen tail of the gateway's deal
// history and feeds each outcome into risk, journal and alerts.
func (e *Engine) settleClosedTrades(acct broker.AccountInfo) {
	hist := e.gw.History()
	if len(hist) <= e.dealsSeen {
		return
	}

	for _, deal := range hist[e.dealsSeen:] {
		if deal.Reason == "PARTIAL" {
			e.risk.OnPartialClose(deal.PnL, acct.Balance)
		} else {
			e.risk.OnTradeClosed(deal.PnL, acct.Balance)
		}

		rec := journal.TradeRecord{
			RecordID:   id.New(),
			Ticket:     deal.Ticket,
			Instrument: e.cfg.Instrument.Name,
			Strategy:   deal.Strategy,
			Direction:  deal.Direction.String(),
			Lots:       deal.Lots,
			EntryPrice: deal.Entry,
			ExitPrice:  deal.Exit,
			StopPips:   deal.StopPips,
			SpreadPips: deal.SpreadPips,
			RiskPct:    e.risk.RiskPercent(),
			OpenTime:   deal.OpenTime,
			CloseTime:  deal.CloseTime,
			RealizedPL: deal.PnL,
			Posture:    e.risk.Posture().String(),
			Reason:     deal.Reason,
		}
		if err := e.jrnl.RecordTrade(rec); err != nil {
			e.log.Error().Err(err).Msg("journal trade failed")
		}

		e.notify.TradeClosed(deal.Direction.String(), deal.Lots, deal.PnL, deal.Reason)
		e.log.Info().
			Int64("ticket", deal.Ticket).
			Float64("pnl", deal.PnL).
			Str("reason", deal.Reason).
			Msg("trade closed")
	}
	e.dealsSeen = len(hist)
}

// handleKillSwitch flattens the book once. The posture itself is
// permanent, so repeat cycles only log.
func (e *Engine) handleKillSwitch(acct broker.AccountInfo, now time.Time) {
	if e.killHandled {
		return
	}
	e.killHandled = true

	e.log.Error().
		Float64("equity", acct.Equity).
		Float64("dd_pct", e.risk.Drawdown(acct.Equity)).
		Msg("kill switch engaged, flattening")

	e.mgr.CloseAll("kill switch")
	e.mgr.CancelPending("kill switch")
	e.notify.RuleBreach(risk.CodeKillSwitch,
		fmt.Sprintf("drawdown %.2f%%, all positions closed", e.risk.Drawdown(acct.Equity)))
	e.recordEquity(acct, now)
}

func (e *Engine) heartbeat(acct broker.AccountInfo, now time.Time) {
	if !e.lastHeartbeat.IsZero() && now.Sub(e.lastHeartbeat) < e.cfg.Heartbeat {
		return
	}
	e.lastHeartbeat = now

	s := e.risk.Summary(acct.Balance, acct.Equity)
	e.notify.Heartbeat(s, e.guard.Status(now))
	e.recordEquity(acct, now)
	e.log.Info().
		Stringer("posture", s.Posture).
		Float64("balance", acct.Balance).
		Float64("equity", acct.Equity).
		Float64("dd_pct", s.TotalDDPct).
		Int("trades_today", s.TradesToday).
		Msg("heartbeat")
}

func (e *Engine) recordEquity(acct broker.AccountInfo, now time.Time) {
	s := e.risk.Summary(acct.Balance, acct.Equity)
	err := e.jrnl.RecordEquity(journal.EquitySnapshot{
		Time:         now,
		Balance:      acct.Balance,
		Equity:       acct.Equity,
		DrawdownPct:  s.TotalDDPct,
		DailyPnL:     s.DailyPnL,
		Posture:      s.Posture.String(),
		ConsecLosses: s.ConsecLosses,
		TradesToday:  s.TradesToday,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("journal equity failed")
	}
}
