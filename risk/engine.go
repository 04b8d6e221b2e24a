// Package risk tracks account health against the prop-firm mandate and
// gates every trading action. All limits are recomputed from balance and
// equity on each evaluation; breaches are state transitions, not errors.
package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"propengine/market"
)

type Config struct {
	InitialBalance float64

	RiskPercent float64 // normal risk per trade, percent of balance
	RiskReduced float64 // risk while posture is Reduced

	MaxDailyLossPct float64
	MaxTotalDDPct   float64

	TrailingDDEnabled bool
	TrailingDDPct     float64
	// TrailingKill selects the severity of a trailing-drawdown breach:
	// true escalates straight to KillSwitch, false pauses for the week.
	TrailingKill bool

	MaxConsecLosses int
	ReduceAfter     int // consecutive losses before Reduced posture
	MaxTradesPerDay int
	MaxSpreadPips   float64

	// Drawdown-from-peak risk scaling tiers.
	DDTier1Pct    float64
	DDTier2Pct    float64
	DDTier2Factor float64
}

func (c *Config) setDefaults() {
	if c.ReduceAfter <= 0 {
		c.ReduceAfter = 3
	}
	if c.DDTier1Pct <= 0 {
		c.DDTier1Pct = 3.0
	}
	if c.DDTier2Pct <= 0 {
		c.DDTier2Pct = 5.0
	}
	if c.DDTier2Factor <= 0 {
		c.DDTier2Factor = 0.4
	}
}

// Engine is the risk state machine. It is single-goroutine by contract;
// the orchestration loop is the only caller.
type Engine struct {
	cfg Config
	log zerolog.Logger

	posture       Posture
	consecLosses  int
	tradesToday   int
	todayRealized float64
	prevDayClose  float64
	highWaterMark float64
	lastEquity    float64

	day     time.Time // UTC date marker for the daily roll
	isoYear int
	isoWeek int
	started bool
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:           cfg,
		log:           log.With().Str("component", "risk").Logger(),
		prevDayClose:  cfg.InitialBalance,
		highWaterMark: cfg.InitialBalance,
		lastEquity:    cfg.InitialBalance,
	}
}

func (e *Engine) Posture() Posture { return e.posture }

// Drawdown returns the total drawdown from initial balance, in percent,
// floored at zero.
func (e *Engine) Drawdown(equity float64) float64 {
	if e.cfg.InitialBalance <= 0 {
		return 0
	}
	dd := (e.cfg.InitialBalance - equity) / e.cfg.InitialBalance * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyPnL is today's realized P&L plus the current floating P&L.
func (e *Engine) DailyPnL(balance, equity float64) float64 {
	return e.todayRealized + (equity - balance)
}

// UpdateState re-derives the posture from current account metrics. It is
// idempotent and safe to call on every tick and timer event. Within a day
// the posture only ratchets toward more restrictive states; the daily and
// weekly rolls relax paused postures but never KillSwitch.
func (e *Engine) UpdateState(balance, equity float64, now time.Time) {
	e.roll(balance, now)

	e.lastEquity = equity
	if balance > e.highWaterMark {
		e.highWaterMark = balance
	}

	target := e.evaluate(balance, equity)
	if target > e.posture {
		e.log.Warn().
			Stringer("from", e.posture).
			Stringer("to", target).
			Float64("balance", balance).
			Float64("equity", equity).
			Msg("risk posture escalated")
		e.posture = target
	}
}

func (e *Engine) evaluate(balance, equity float64) Posture {
	if e.Drawdown(equity) >= e.cfg.MaxTotalDDPct {
		return KillSwitch
	}

	if e.cfg.TrailingDDEnabled && e.highWaterMark > 0 {
		trail := (e.highWaterMark - equity) / e.highWaterMark * 100
		if trail >= e.cfg.TrailingDDPct {
			if e.cfg.TrailingKill {
				return KillSwitch
			}
			return WeeklyPaused
		}
	}

	dailyLimit := e.prevDayClose * e.cfg.MaxDailyLossPct / 100
	if e.DailyPnL(balance, equity) < -dailyLimit {
		return DailyPaused
	}

	if e.tradesToday >= e.cfg.MaxTradesPerDay {
		return DailyPaused
	}

	if e.consecLosses >= e.cfg.MaxConsecLosses {
		return DailyPaused
	}

	if e.consecLosses >= e.cfg.ReduceAfter {
		return Reduced
	}

	return Normal
}

// roll advances the calendar markers. The first call only records them.
func (e *Engine) roll(balance float64, now time.Time) {
	now = now.UTC()
	today := now.Truncate(24 * time.Hour)
	year, week := now.ISOWeek()

	if !e.started {
		e.started = true
		e.day = today
		e.isoYear, e.isoWeek = year, week
		return
	}

	if !today.Equal(e.day) {
		e.prevDayClose = balance
		e.todayRealized = 0
		e.tradesToday = 0
		e.day = today
		if e.posture == DailyPaused || e.posture == Reduced || e.posture == Normal {
			// Consecutive losses survive the roll, so a paused day can
			// reopen at Reduced rather than Normal.
			if e.consecLosses >= e.cfg.ReduceAfter {
				e.posture = Reduced
			} else {
				e.posture = Normal
			}
			e.log.Info().Stringer("posture", e.posture).Msg("daily risk counters reset")
		}
	}

	if year != e.isoYear || week != e.isoWeek {
		e.isoYear, e.isoWeek = year, week
		if e.posture == WeeklyPaused {
			e.posture = Normal
			e.log.Info().Msg("weekly pause lifted")
		}
	}
}

// RuleCheck runs every admission gate immediately before an execution
// attempt. It returns nil when trading is allowed.
func (e *Engine) RuleCheck(balance, equity, spreadPips float64, now time.Time) *Blocked {
	e.UpdateState(balance, equity, now)

	switch e.posture {
	case KillSwitch:
		return &Blocked{CodeKillSwitch, fmt.Sprintf("total drawdown %.2f%%", e.Drawdown(equity))}
	case DailyPaused:
		return &Blocked{CodeDailyPause, "paused until next trading day"}
	case WeeklyPaused:
		return &Blocked{CodeWeeklyPause, "paused until next trading week"}
	}

	if e.tradesToday >= e.cfg.MaxTradesPerDay {
		return &Blocked{CodeMaxTrades, fmt.Sprintf("%d trades today", e.tradesToday)}
	}

	return e.CheckSpread(spreadPips)
}

// CheckSpread gates on the live spread alone. It runs inside RuleCheck
// and again immediately before order submission, since the spread can
// widen while a signal is being evaluated.
func (e *Engine) CheckSpread(spreadPips float64) *Blocked {
	if spreadPips > e.cfg.MaxSpreadPips {
		return &Blocked{CodeSpreadHigh, fmt.Sprintf("%.1f pips > %.1f", spreadPips, e.cfg.MaxSpreadPips)}
	}
	return nil
}

// RiskPercent is the risk-per-trade rate for the current posture, further
// scaled down by drawdown-from-peak tiers.
func (e *Engine) RiskPercent() float64 {
	if e.posture == KillSwitch {
		return 0
	}
	// Trailing-drawdown pause trades at survival risk if the caller
	// chooses to size anyway; RuleCheck still blocks new entries.
	if e.posture == WeeklyPaused {
		return 0.25
	}

	risk := e.cfg.RiskPercent
	if e.posture == Reduced {
		risk = e.cfg.RiskReduced
	}

	if e.lastEquity > 0 && e.highWaterMark > 0 {
		dd := (e.highWaterMark - e.lastEquity) / e.highWaterMark * 100
		switch {
		case dd >= e.cfg.DDTier2Pct:
			risk = min(risk, e.cfg.RiskReduced*e.cfg.DDTier2Factor)
		case dd >= e.cfg.DDTier1Pct:
			risk = min(risk, e.cfg.RiskReduced)
		}
	}
	return risk
}

// LotSize converts the current risk rate into a broker-normalized volume.
// Zero means "do not trade".
func (e *Engine) LotSize(balance, stopPips float64, inst market.Instrument, lc market.LotConstraints) float64 {
	riskPct := e.RiskPercent()
	if balance <= 0 || stopPips <= 0 || riskPct <= 0 || inst.PipValuePerLot <= 0 {
		return 0
	}
	riskDollars := balance * riskPct / 100
	lots := riskDollars / (stopPips * inst.PipValuePerLot)
	return market.NormalizeLots(lots, lc)
}

// OnTradeOpened counts an accepted fill against the daily budget.
func (e *Engine) OnTradeOpened() {
	e.tradesToday++
}

// OnPartialClose books realized P&L from a partial close without
// touching the losing streak: the trade itself is still open.
func (e *Engine) OnPartialClose(pnl, balance float64) {
	e.todayRealized += pnl
	if balance > e.highWaterMark {
		e.highWaterMark = balance
	}
}

// OnTradeClosed feeds a realized outcome back into the state machine.
// A flat close neither extends nor resets the losing streak.
func (e *Engine) OnTradeClosed(pnl, balance float64) {
	e.todayRealized += pnl

	switch {
	case pnl < 0:
		e.consecLosses++
	case pnl > 0:
		e.consecLosses = 0
	}

	if balance > e.highWaterMark {
		e.highWaterMark = balance
	}
}

// Summary is the heartbeat snapshot.
type Summary struct {
	Posture      Posture
	TotalDDPct   float64
	DailyPnL     float64
	ConsecLosses int
	TradesToday  int
	RiskPct      float64
}

func (e *Engine) Summary(balance, equity float64) Summary {
	return Summary{
		Posture:      e.posture,
		TotalDDPct:   e.Drawdown(equity),
		DailyPnL:     e.DailyPnL(balance, equity),
		ConsecLosses: e.consecLosses,
		TradesToday:  e.tradesToday,
		RiskPct:      e.RiskPercent(),
	}
}
