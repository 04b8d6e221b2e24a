// Package trade executes accepted signals and walks the open position
// through its R-multiple milestones: breakeven, partial close, trailing
// stop. All stop adjustments are a monotonic ratchet; protection is never
// loosened.
package trade

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"propengine/broker"
	"propengine/market"
	"propengine/strategy"
)

type Config struct {
	Instrument  market.Instrument
	StrategyTag string

	BreakevenEnabled bool
	BreakevenR       float64

	PartialEnabled bool
	PartialR       float64
	PartialPct     float64 // percent of volume to close

	TrailingEnabled bool
	TrailingStartR  float64
	TrailingATRMult float64

	Retries    int
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

type Manager struct {
	cfg Config
	gw  broker.Gateway
	log zerolog.Logger

	sleep func(time.Duration)
}

func NewManager(cfg Config, gw broker.Gateway, log zerolog.Logger) *Manager {
	cfg.setDefaults()
	return &Manager{
		cfg:   cfg,
		gw:    gw,
		log:   log.With().Str("component", "trade").Logger(),
		sleep: time.Sleep,
	}
}

// Execute attempts a market entry for the signal, retrying a bounded
// number of times with a fixed delay. The wait is deliberately
// synchronous: the caller must know fill status before proceeding, and
// at most one entry may ever be in flight.
func (m *Manager) Execute(sig *strategy.Signal, lots float64) (broker.TradeResult, error) {
	var res broker.TradeResult
	for attempt := 1; attempt <= m.cfg.Retries; attempt++ {
		res = m.gw.OpenTrade(sig.Direction, lots, sig.Stop, sig.Target, m.cfg.StrategyTag)
		if res.Success {
			if attempt > 1 {
				m.log.Info().Int("attempt", attempt).Int64("ticket", res.Ticket).Msg("order filled after retry")
			}
			return res, nil
		}
		m.log.Warn().
			Int("attempt", attempt).
			Str("error", res.Error).
			Msg("order attempt failed")
		if attempt < m.cfg.Retries {
			m.sleep(m.cfg.RetryDelay)
		}
	}
	return res, fmt.Errorf("order rejected after %d attempts: %s", m.cfg.Retries, res.Error)
}

// ManageOpen advances breakeven, partial-close and trailing state for the
// open position. Called every tick; each milestone is idempotent through
// its position flag, and a failed modification is simply retried on the
// next tick because the flag was not set.
func (m *Manager) ManageOpen(atr float64) {
	for _, pos := range m.gw.Positions() {
		if pos.StopPips <= 0 {
			continue
		}

		current := m.currentPrice(pos.Direction)
		if current <= 0 {
			continue
		}

		// Signed favorable movement: negative while under water, so no
		// milestone can fire on an adverse move.
		move := (current - pos.Entry) * float64(pos.Direction)
		r := m.cfg.Instrument.PriceToPips(move) / pos.StopPips
		if move < 0 {
			r = -r
		}

		m.tryPartialClose(pos, r)
		m.tryBreakeven(pos, r)
		m.tryTrail(pos, r, current, atr)
	}
}

func (m *Manager) tryBreakeven(pos *broker.Position, r float64) {
	if !m.cfg.BreakevenEnabled || pos.BreakevenSet || r < m.cfg.BreakevenR {
		return
	}

	// One pip beyond entry in the favorable direction.
	newSL := pos.Entry + float64(pos.Direction)*m.cfg.Instrument.PipSize
	newSL = m.cfg.Instrument.RoundPrice(newSL)
	if !tightens(pos.Direction, newSL, pos.StopLoss) {
		return
	}

	if m.gw.ModifyStop(pos.Ticket, newSL) {
		pos.StopLoss = newSL
		pos.BreakevenSet = true
		m.log.Info().
			Int64("ticket", pos.Ticket).
			Float64("r", r).
			Float64("sl", newSL).
			Msg("breakeven activated")
	}
}

func (m *Manager) tryPartialClose(pos *broker.Position, r float64) {
	if !m.cfg.PartialEnabled || pos.PartialDone || r < m.cfg.PartialR {
		return
	}

	lc := m.gw.LotConstraints()
	closeLots := market.NormalizeLots(pos.Lots*m.cfg.PartialPct/100, lc)
	remaining := pos.Lots - closeLots

	if closeLots < lc.Min || remaining < lc.Min {
		// Position too small to split; skip permanently rather than
		// re-evaluating a hopeless close every tick.
		pos.PartialDone = true
		m.log.Debug().Int64("ticket", pos.Ticket).Float64("lots", pos.Lots).Msg("partial close skipped, volume too small")
		return
	}

	if m.gw.PartialClose(pos.Ticket, closeLots) {
		pos.Lots = remaining
		pos.PartialDone = true
		m.log.Info().
			Int64("ticket", pos.Ticket).
			Float64("closed_lots", closeLots).
			Float64("remaining_lots", remaining).
			Float64("r", r).
			Msg("partial close executed")
	}
}

func (m *Manager) tryTrail(pos *broker.Position, r, current, atr float64) {
	if !m.cfg.TrailingEnabled || !pos.BreakevenSet || r < m.cfg.TrailingStartR || atr <= 0 {
		return
	}

	newSL := current - float64(pos.Direction)*atr*m.cfg.TrailingATRMult
	newSL = m.cfg.Instrument.RoundPrice(newSL)

	if !tightens(pos.Direction, newSL, pos.StopLoss) {
		return
	}
	// Never trail back through entry: past breakeven the worst case
	// stays a scratch, not a loss.
	if pos.Direction == market.Long && newSL <= pos.Entry {
		return
	}
	if pos.Direction == market.Short && newSL >= pos.Entry {
		return
	}

	if m.gw.ModifyStop(pos.Ticket, newSL) {
		pos.StopLoss = newSL
		m.log.Debug().Int64("ticket", pos.Ticket).Float64("sl", newSL).Msg("trailing stop advanced")
	}
}

// ForceBreakeven moves the stop to exactly the entry price of any
// favorable position that has not yet reached its breakeven milestone.
// Used defensively ahead of scheduled high-impact events.
func (m *Manager) ForceBreakeven() {
	for _, pos := range m.gw.Positions() {
		if pos.BreakevenSet {
			continue
		}
		current := m.currentPrice(pos.Direction)
		if current <= 0 {
			continue
		}
		if (current-pos.Entry)*float64(pos.Direction) <= 0 {
			continue
		}

		newSL := m.cfg.Instrument.RoundPrice(pos.Entry)
		if !tightens(pos.Direction, newSL, pos.StopLoss) {
			continue
		}
		if m.gw.ModifyStop(pos.Ticket, newSL) {
			pos.StopLoss = newSL
			pos.BreakevenSet = true
			m.log.Info().Int64("ticket", pos.Ticket).Msg("stop forced to entry ahead of news")
		}
	}
}

// CloseAll flattens every matching position, best effort.
func (m *Manager) CloseAll(reason string) {
	m.log.Warn().Str("reason", reason).Msg("closing all positions")
	m.gw.CloseAll(reason)
}

// CancelPending removes matching pending orders, best effort.
func (m *Manager) CancelPending(reason string) {
	m.gw.CancelPending(reason)
}

func (m *Manager) currentPrice(dir market.Direction) float64 {
	// Longs are valued (and closed) at bid, shorts at ask.
	if dir == market.Long {
		return m.gw.Bid()
	}
	return m.gw.Ask()
}

// tightens reports whether newSL protects strictly more than oldSL.
// A zero oldSL means the position has no stop yet.
func tightens(dir market.Direction, newSL, oldSL float64) bool {
	if oldSL == 0 {
		return true
	}
	if dir == market.Long {
		return newSL > oldSL
	}
	return newSL < oldSL
}
